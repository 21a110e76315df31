package enums

// AuditAction tags the variant of an audit log entry and its details payload.
type AuditAction string

const (
	AuditActionAuctionCreated       AuditAction = "auction_created"
	AuditActionAuctionUpdated       AuditAction = "auction_updated"
	AuditActionAuctionDeleted       AuditAction = "auction_deleted"
	AuditActionStatusChanged        AuditAction = "status_changed"
	AuditActionBidRecorded          AuditAction = "bid_recorded"
	AuditActionBidDeleted           AuditAction = "bid_deleted"
	AuditActionAggregatesReconciled AuditAction = "aggregates_reconciled"
	AuditActionProfileDeleted       AuditAction = "profile_deleted"
)

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}
