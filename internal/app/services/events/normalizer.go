package events

import (
	"encoding/hex"
	"fmt"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/lightning"
)

// Normalized is the canonical projection of a raw protocol event.
type Normalized struct {
	Category    event.Category
	Severity    event.Severity
	Title       string
	Description string
	Payload     *event.Payload
}

// Normalize maps a raw protocol event to its canonical shape. Every shipped
// variant has an explicit mapping; an unmapped type is an error, never a
// silent drop. Binary fields are hex-encoded here so storage only ever sees
// printable payloads.
func Normalize(raw lightning.RawEvent) (Normalized, error) {
	switch e := raw.(type) {
	case lightning.LndChannelOpened:
		payload := event.NewPayload().
			Set("active", e.Active).
			Set("channel_id", e.ChanID).
			Set("counterparty_node_id", e.RemotePubkey).
			Set("channel_point", e.ChannelPoint).
			Set("capacity", e.Capacity).
			Set("local_balance", e.LocalBalance).
			Set("remote_balance", e.RemoteBalance).
			Set("total_satoshis_sent", e.TotalSatoshisSent).
			Set("total_satoshis_received", e.TotalSatoshisReceived)
		return Normalized{
			Category:    event.CategoryChannel,
			Severity:    event.SeverityInfo,
			Title:       "Channel Opened",
			Description: fmt.Sprintf("New channel opened with %s", e.RemotePubkey),
			Payload:     payload,
		}, nil

	case lightning.LndChannelClosed:
		payload := event.NewPayload().
			Set("chan_id", e.ChanID).
			Set("remote_pubkey", e.RemotePubkey).
			Set("channel_point", e.ChannelPoint).
			Set("chain_hash", e.ChainHash).
			Set("closing_tx_hash", e.ClosingTxHash).
			Set("capacity", e.Capacity).
			Set("close_height", e.CloseHeight).
			Set("settled_balance", e.SettledBalance).
			Set("time_locked_balance", e.TimeLockedBalance).
			Set("close_type", e.CloseType).
			Set("open_initiator", e.OpenInitiator).
			Set("close_initiator", e.CloseInitiator)
		return Normalized{
			Category:    event.CategoryChannel,
			Severity:    event.SeverityWarning,
			Title:       "Channel Closed",
			Description: fmt.Sprintf("Channel closed with %s", e.RemotePubkey),
			Payload:     payload,
		}, nil

	case lightning.LndInvoiceCreated:
		return lndInvoiceNormalized(e.LndInvoice, event.SeverityInfo, "Invoice Created",
			fmt.Sprintf("New invoice created for %d msat", e.ValueMsat)), nil

	case lightning.LndInvoiceSettled:
		return lndInvoiceNormalized(e.LndInvoice, event.SeverityInfo, "Invoice Settled",
			fmt.Sprintf("Invoice settled for %d msat", e.ValueMsat)), nil

	case lightning.LndInvoiceCancelled:
		return lndInvoiceNormalized(e.LndInvoice, event.SeverityWarning, "Invoice Cancelled",
			fmt.Sprintf("Invoice cancelled for %d msat", e.ValueMsat)), nil

	case lightning.LndInvoiceAccepted:
		return lndInvoiceNormalized(e.LndInvoice, event.SeverityInfo, "Invoice Accepted",
			fmt.Sprintf("Invoice accepted for %d msat", e.ValueMsat)), nil

	case lightning.LndPaymentSucceeded:
		payload := event.NewPayload().
			Set("payment_hash", e.PaymentHash).
			Set("payment_preimage", e.PaymentPreimage).
			Set("value_msat", e.ValueMsat).
			Set("fee_msat", e.FeeMsat).
			Set("creation_time_ns", e.CreationTimeNs).
			Set("payment_request", e.PaymentRequest)
		return Normalized{
			Category:    event.CategoryPayment,
			Severity:    event.SeverityInfo,
			Title:       "Payment Sent",
			Description: fmt.Sprintf("Payment of %d msat succeeded", e.ValueMsat),
			Payload:     payload,
		}, nil

	case lightning.LndPaymentFailed:
		payload := event.NewPayload().
			Set("payment_hash", e.PaymentHash).
			Set("value_msat", e.ValueMsat).
			Set("failure_reason", e.FailureReason)
		return Normalized{
			Category:    event.CategoryPayment,
			Severity:    event.SeverityWarning,
			Title:       "Payment Failed",
			Description: fmt.Sprintf("Payment of %d msat failed", e.ValueMsat),
			Payload:     payload,
		}, nil

	case lightning.ClnChannelOpened:
		payload := event.NewPayload().
			Set("counterparty_node_id", e.PeerID).
			Set("funding_msat", e.FundingMsat).
			Set("funding_txid", e.FundingTxID).
			Set("channel_ready", e.ChannelReady)
		return Normalized{
			Category:    event.CategoryChannel,
			Severity:    event.SeverityInfo,
			Title:       "Channel Opened",
			Description: fmt.Sprintf("New channel opened with %s", e.PeerID),
			Payload:     payload,
		}, nil

	case lightning.ClnChannelClosed:
		payload := event.NewPayload().
			Set("counterparty_node_id", e.PeerID).
			Set("channel_id", e.ChannelID).
			Set("cause", e.Cause).
			Set("message", e.Message)
		return Normalized{
			Category:    event.CategoryChannel,
			Severity:    event.SeverityWarning,
			Title:       "Channel Closed",
			Description: fmt.Sprintf("Channel closed with %s", e.PeerID),
			Payload:     payload,
		}, nil

	case lightning.ClnInvoiceCreated:
		payload := event.NewPayload().
			Set("label", e.Label).
			Set("preimage", hex.EncodeToString(e.Preimage)).
			Set("amount_msat", e.AmountMsat)
		return Normalized{
			Category:    event.CategoryInvoice,
			Severity:    event.SeverityInfo,
			Title:       "Invoice Created",
			Description: fmt.Sprintf("New invoice created for %d msat", e.AmountMsat),
			Payload:     payload,
		}, nil

	case lightning.ClnInvoiceSettled:
		payload := event.NewPayload().
			Set("label", e.Label).
			Set("preimage", hex.EncodeToString(e.Preimage)).
			Set("amount_msat", e.AmountMsat)
		return Normalized{
			Category:    event.CategoryInvoice,
			Severity:    event.SeverityInfo,
			Title:       "Invoice Settled",
			Description: fmt.Sprintf("Invoice settled for %d msat", e.AmountMsat),
			Payload:     payload,
		}, nil

	case lightning.ClnPaymentSucceeded:
		payload := event.NewPayload().
			Set("payment_hash", hex.EncodeToString(e.PaymentHash)).
			Set("payment_preimage", hex.EncodeToString(e.Preimage)).
			Set("amount_msat", e.AmountMsat).
			Set("amount_sent_msat", e.AmountSentMsat)
		return Normalized{
			Category:    event.CategoryPayment,
			Severity:    event.SeverityInfo,
			Title:       "Payment Sent",
			Description: fmt.Sprintf("Payment of %d msat succeeded", e.AmountMsat),
			Payload:     payload,
		}, nil

	case lightning.ClnPaymentFailed:
		payload := event.NewPayload().
			Set("payment_hash", hex.EncodeToString(e.PaymentHash)).
			Set("amount_sent_msat", e.AmountSentMsat).
			Set("failure_message", e.FailureMessage)
		return Normalized{
			Category:    event.CategoryPayment,
			Severity:    event.SeverityWarning,
			Title:       "Payment Failed",
			Description: "Outgoing payment failed",
			Payload:     payload,
		}, nil

	default:
		return Normalized{}, fmt.Errorf("no canonical mapping for raw event %T", raw)
	}
}

func lndInvoiceNormalized(inv lightning.LndInvoice, severity event.Severity, title, description string) Normalized {
	payload := event.NewPayload().
		Set("preimage", hex.EncodeToString(inv.Preimage)).
		Set("hash", hex.EncodeToString(inv.Hash)).
		Set("value_msat", inv.ValueMsat).
		Set("state", inv.State).
		Set("memo", inv.Memo).
		Set("creation_date", inv.CreationDate).
		Set("payment_request", inv.PaymentRequest)
	return Normalized{
		Category:    event.CategoryInvoice,
		Severity:    severity,
		Title:       title,
		Description: description,
		Payload:     payload,
	}
}
