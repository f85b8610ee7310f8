package lightning

import "github.com/lnwatch/dashboard/internal/app/domain/event"

// RawEvent is a protocol-native node event prior to normalisation. Exactly one
// concrete type exists per protocol variant; the normaliser must handle all of
// them.
type RawEvent interface {
	// Category reports the event class used for filtering and subscription
	// scoping.
	Category() event.Category

	rawEvent()
}

// --- LND variants -----------------------------------------------------------

// LndChannelOpened is emitted when an LND channel becomes open.
type LndChannelOpened struct {
	Active                bool
	RemotePubkey          string
	ChannelPoint          string
	ChanID                uint64
	Capacity              int64
	LocalBalance          int64
	RemoteBalance         int64
	TotalSatoshisSent     int64
	TotalSatoshisReceived int64
}

// LndChannelClosed is emitted when an LND channel is closed on chain.
type LndChannelClosed struct {
	ChannelPoint      string
	ChanID            uint64
	ChainHash         string
	ClosingTxHash     string
	RemotePubkey      string
	Capacity          int64
	CloseHeight       uint32
	SettledBalance    int64
	TimeLockedBalance int64
	CloseType         int32
	OpenInitiator     int32
	CloseInitiator    int32
}

// LndInvoice carries the invoice fields shared by every LND invoice variant.
// Preimage and Hash are raw bytes at native precision; encoding happens at
// normalisation time.
type LndInvoice struct {
	Preimage       []byte
	Hash           []byte
	ValueMsat      int64
	State          int32
	Memo           string
	CreationDate   int64
	PaymentRequest string
}

// LndInvoiceCreated is emitted when a new invoice is added.
type LndInvoiceCreated struct{ LndInvoice }

// LndInvoiceSettled is emitted when an invoice is paid.
type LndInvoiceSettled struct{ LndInvoice }

// LndInvoiceCancelled is emitted when an invoice is cancelled or expires.
type LndInvoiceCancelled struct{ LndInvoice }

// LndInvoiceAccepted is emitted when a hold invoice is accepted.
type LndInvoiceAccepted struct{ LndInvoice }

// LndPaymentSucceeded is emitted when an outgoing payment settles.
type LndPaymentSucceeded struct {
	PaymentHash     string
	PaymentPreimage string
	ValueMsat       int64
	FeeMsat         int64
	CreationTimeNs  int64
	PaymentRequest  string
}

// LndPaymentFailed is emitted when an outgoing payment fails terminally.
type LndPaymentFailed struct {
	PaymentHash   string
	ValueMsat     int64
	FailureReason string
}

func (LndChannelOpened) Category() event.Category    { return event.CategoryChannel }
func (LndChannelClosed) Category() event.Category    { return event.CategoryChannel }
func (LndInvoiceCreated) Category() event.Category   { return event.CategoryInvoice }
func (LndInvoiceSettled) Category() event.Category   { return event.CategoryInvoice }
func (LndInvoiceCancelled) Category() event.Category { return event.CategoryInvoice }
func (LndInvoiceAccepted) Category() event.Category  { return event.CategoryInvoice }
func (LndPaymentSucceeded) Category() event.Category { return event.CategoryPayment }
func (LndPaymentFailed) Category() event.Category    { return event.CategoryPayment }

func (LndChannelOpened) rawEvent()    {}
func (LndChannelClosed) rawEvent()    {}
func (LndInvoiceCreated) rawEvent()   {}
func (LndInvoiceSettled) rawEvent()   {}
func (LndInvoiceCancelled) rawEvent() {}
func (LndInvoiceAccepted) rawEvent()  {}
func (LndPaymentSucceeded) rawEvent() {}
func (LndPaymentFailed) rawEvent()    {}

// --- CLN variants -----------------------------------------------------------

// ClnChannelOpened is emitted for CLN channel_opened notifications.
type ClnChannelOpened struct {
	PeerID       string
	FundingMsat  int64
	FundingTxID  string
	ChannelReady bool
}

// ClnChannelClosed is emitted when a CLN channel reaches a closed state.
type ClnChannelClosed struct {
	PeerID    string
	ChannelID string
	Cause     string
	Message   string
}

// ClnInvoiceCreated is emitted for CLN invoice_creation notifications.
type ClnInvoiceCreated struct {
	Label      string
	Preimage   []byte
	AmountMsat int64
}

// ClnInvoiceSettled is emitted for CLN invoice_payment notifications.
type ClnInvoiceSettled struct {
	Label      string
	Preimage   []byte
	AmountMsat int64
}

// ClnPaymentSucceeded is emitted for CLN sendpay_success notifications.
type ClnPaymentSucceeded struct {
	PaymentHash    []byte
	Preimage       []byte
	AmountMsat     int64
	AmountSentMsat int64
}

// ClnPaymentFailed is emitted for CLN sendpay_failure notifications.
type ClnPaymentFailed struct {
	PaymentHash    []byte
	AmountSentMsat int64
	FailureMessage string
}

func (ClnChannelOpened) Category() event.Category    { return event.CategoryChannel }
func (ClnChannelClosed) Category() event.Category    { return event.CategoryChannel }
func (ClnInvoiceCreated) Category() event.Category   { return event.CategoryInvoice }
func (ClnInvoiceSettled) Category() event.Category   { return event.CategoryInvoice }
func (ClnPaymentSucceeded) Category() event.Category { return event.CategoryPayment }
func (ClnPaymentFailed) Category() event.Category    { return event.CategoryPayment }

func (ClnChannelOpened) rawEvent()    {}
func (ClnChannelClosed) rawEvent()    {}
func (ClnInvoiceCreated) rawEvent()   {}
func (ClnInvoiceSettled) rawEvent()   {}
func (ClnPaymentSucceeded) rawEvent() {}
func (ClnPaymentFailed) rawEvent()    {}
