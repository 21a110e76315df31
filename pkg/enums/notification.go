package enums

import "fmt"

// NotificationType maps to the notification_type column.
type NotificationType string

const (
	NotificationTypeAuctionWon       NotificationType = "auction_won"
	NotificationTypeAuctionCompleted NotificationType = "auction_completed"
	NotificationTypeAuctionCancelled NotificationType = "auction_cancelled"
	NotificationTypeBidUpdated       NotificationType = "bid_updated"
	NotificationTypeSystem           NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeAuctionWon,
	NotificationTypeAuctionCompleted,
	NotificationTypeAuctionCancelled,
	NotificationTypeBidUpdated,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
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
