package model

// BillStatus is the archive state of an owned or imported bill. Archive state
// is a purely local decision and is never adopted from a remote merge.
type BillStatus string

const (
	BillActive   BillStatus = "active"
	BillArchived BillStatus = "archived"
)

// ShareStatus reflects the health of a bill's relay channel.
type ShareStatus string

const (
	ShareLive    ShareStatus = "live"
	ShareExpired ShareStatus = "expired"
	ShareError   ShareStatus = "error"
)

// Participant is a named party to a bill.
type Participant struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	AmountOwed float64 `json:"amountOwed"`
	Paid       bool    `json:"paid"`
	Phone      *string `json:"phone,omitempty"`
	Email      *string `json:"email,omitempty"`
}

// ShareInfo is the owner-side record of a bill's relay channel. The signing
// private key is deliberately absent; it lives in the keys collection keyed
// by bill ID and leaves the device only via explicit export.
type ShareInfo struct {
	ShareID          string      `json:"shareId"`
	EncryptionKey    string      `json:"encryptionKey"`
	SigningPublicKey string      `json:"signingPublicKey"`
	UpdateToken      string      `json:"updateToken,omitempty"`
	ShareStatus      ShareStatus `json:"shareStatus,omitempty"`
	LastSyncedAt     int64       `json:"lastSyncedAt,omitempty"`
}

// Bill is an owned financial record.
type Bill struct {
	ID            string        `json:"id"`
	Description   string        `json:"description"`
	TotalAmount   float64       `json:"totalAmount"`
	Date          string        `json:"date"`
	Status        BillStatus    `json:"status"`
	Participants  []Participant `json:"participants"`
	ReceiptImage  *string       `json:"receiptImage,omitempty"`
	ShareInfo     *ShareInfo    `json:"shareInfo,omitempty"`
	LastUpdatedAt int64         `json:"lastUpdatedAt"`
}

// PaymentDetails carries the owner's payment identifiers so importers can
// settle up without a separate exchange.
type PaymentDetails struct {
	Venmo         string `json:"venmo,omitempty"`
	PayPal        string `json:"paypal,omitempty"`
	CashApp       string `json:"cashApp,omitempty"`
	Zelle         string `json:"zelle,omitempty"`
	CustomMessage string `json:"customMessage,omitempty"`
}

// SharedBillPayload is the plaintext that travels (encrypted and signed)
// through the relay. PublicKey duplicates the creator key for first import;
// on subsequent polls the importer verifies against its pinned copy, never
// this field.
type SharedBillPayload struct {
	Bill           Bill            `json:"bill"`
	CreatorName    string          `json:"creatorName"`
	PaymentDetails *PaymentDetails `json:"paymentDetails,omitempty"`
	PublicKey      string          `json:"publicKey"`
}

// SharedData is the importer's last-verified copy of the creator's payload.
type SharedData struct {
	Payload          SharedBillPayload `json:"payload"`
	CreatorPublicKey string            `json:"creatorPublicKey"`
	Signature        string            `json:"signature"`
}

// LocalStatus is the importer's local-only overlay on a shared bill. Remote
// polls recompute MyPortionPaid from the creator's data but never touch
// PaidItems.
type LocalStatus struct {
	MyPortionPaid bool            `json:"myPortionPaid"`
	PaidItems     map[string]bool `json:"paidItems,omitempty"`
}

// ImportedBill mirrors someone else's shared bill on this device.
type ImportedBill struct {
	ID                 string      `json:"id"`
	CreatorName        string      `json:"creatorName"`
	ShareID            string      `json:"shareId"`
	ShareEncryptionKey string      `json:"shareEncryptionKey"`
	MyParticipantID    string      `json:"myParticipantId"`
	SharedData         SharedData  `json:"sharedData"`
	LocalStatus        LocalStatus `json:"localStatus"`
	Status             BillStatus  `json:"status"`
	LiveStatus         ShareStatus `json:"liveStatus,omitempty"`
	LastUpdatedAt      int64       `json:"lastUpdatedAt"`
}

// Frequency enumerates recurrence cadences.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// RecurrenceRule describes when a recurring template falls due.
type RecurrenceRule struct {
	Frequency  Frequency `json:"frequency"`
	Interval   int       `json:"interval"`
	DayOfWeek  *int      `json:"dayOfWeek,omitempty"`  // 0 = Sunday
	DayOfMonth *int      `json:"dayOfMonth,omitempty"` // clamped to month end
}

// RecurringBill is a template from which bills are instantiated.
type RecurringBill struct {
	ID             string         `json:"id"`
	Description    string         `json:"description"`
	TotalAmount    float64        `json:"totalAmount"`
	Participants   []Participant  `json:"participants"`
	RecurrenceRule RecurrenceRule `json:"recurrenceRule"`
	NextDueDate    string         `json:"nextDueDate"` // YYYY-MM-DD
	Status         BillStatus     `json:"status"`
	LastUpdatedAt  int64          `json:"lastUpdatedAt"`
}

// SplitMode is a group's default way of dividing a bill.
type SplitMode string

const (
	SplitEqually SplitMode = "equally"
	SplitAmount  SplitMode = "amount"
	SplitItem    SplitMode = "item"
)

// Group is a saved participant set used for UI pre-fill. Popularity counts
// how often the group seeded a new bill.
type Group struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Participants     []Participant `json:"participants"`
	DefaultSplitMode SplitMode     `json:"defaultSplitMode"`
	Popularity       int           `json:"popularity"`
	LastUpdatedAt    int64         `json:"lastUpdatedAt"`
}

// Category labels bills for reporting.
type Category struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
}

// Settings is the singleton user profile.
type Settings struct {
	PaymentDetails PaymentDetails `json:"paymentDetails"`
	MyDisplayName  string         `json:"myDisplayName"`
	ShareTemplate  string         `json:"shareTemplate,omitempty"`
	LastUpdatedAt  int64          `json:"lastUpdatedAt"`
}

// Theme is the singleton display preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// KeyPair is the transportable JSON form of an asymmetric key pair.
// PrivateKey is empty on the public half that travels in ShareInfo.
type KeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey,omitempty"`
}

// Snapshot is the export/import form of the full local dataset: one field
// per collection. Import clears every collection and repopulates the ones
// present here.
type Snapshot struct {
	Bills          []Bill             `json:"bills,omitempty"`
	ImportedBills  []ImportedBill     `json:"importedBills,omitempty"`
	RecurringBills []RecurringBill    `json:"recurringBills,omitempty"`
	Groups         []Group            `json:"groups,omitempty"`
	Categories     []Category         `json:"categories,omitempty"`
	Settings       *Settings          `json:"settings,omitempty"`
	Theme          *Theme             `json:"theme,omitempty"`
	Subscription   *Subscription      `json:"subscription,omitempty"`
	BillKeys       map[string]KeyPair `json:"billKeys,omitempty"`
	CommKeyPair    *KeyPair           `json:"commKeyPair,omitempty"`
}
