package enums

import "fmt"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationTypeOrderStatus NotificationType = "order_status"
	NotificationTypeWallet      NotificationType = "wallet"
	NotificationTypeGiftCard    NotificationType = "gift_card"
	NotificationTypeSystem      NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderStatus,
	NotificationTypeWallet,
	NotificationTypeGiftCard,
	NotificationTypeSystem,
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
