package tag

import "time"

// Tag maps a human-readable code to a donation wallet. The code is immutable
// once issued and always stored upper-cased.
type Tag struct {
	Code            string
	WalletID        string
	DisplayName     string
	BeneficiaryType string
	OrgID           string
	PINHash         []byte
	BiometricRef    string
	CreatedAt       time.Time
}

// Summary is the gated read view of a tag: metadata plus the current ledger
// balance. Credential material never leaves the registry.
type Summary struct {
	Code            string
	DisplayName     string
	BeneficiaryType string
	Balance         int64
	AsOf            time.Time
}
