package lightning

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/domain/node"
	"github.com/lnwatch/dashboard/pkg/logger"
)

// ClnClient streams events from a Core Lightning node via the clnrest
// websocket notification feed. CLN pushes every notification over one socket,
// so category selection happens client-side.
type ClnClient struct {
	creds  node.Credentials
	dialer *websocket.Dialer
	log    *logger.Logger
}

var _ Client = (*ClnClient)(nil)

// NewClnClient builds a client from cached CLN credentials.
func NewClnClient(creds node.Credentials, log *logger.Logger) (*ClnClient, error) {
	if log == nil {
		log = logger.NewDefault("cln-client")
	}

	tlsCfg := &tls.Config{}
	if creds.CACert != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(creds.CACert)) {
			return nil, fmt.Errorf("%w: invalid CLN CA certificate", ErrConnection)
		}
		tlsCfg.RootCAs = pool
	}
	if creds.ClientCert != "" && creds.ClientKey != "" {
		pair, err := tls.X509KeyPair([]byte(creds.ClientCert), []byte(creds.ClientKey))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid CLN client keypair: %v", ErrConnection, err)
		}
		tlsCfg.Certificates = []tls.Certificate{pair}
	}

	return &ClnClient{
		creds: creds,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  tlsCfg,
		},
		log: log.WithField("node_id", creds.NodeID),
	}, nil
}

func (c *ClnClient) NodeID() string { return c.creds.NodeID }

// Close is a no-op; all connection state is owned by open feeds.
func (c *ClnClient) Close() error { return nil }

// OpenEventFeed connects to the notification socket and forwards events in
// the selected category.
func (c *ClnClient) OpenEventFeed(ctx context.Context, selector event.Category) (<-chan RawEvent, error) {
	switch selector {
	case event.CategoryChannel, event.CategoryInvoice, event.CategoryPayment, event.CategoryAll:
	default:
		return nil, fmt.Errorf("no CLN stream for category %q", selector)
	}

	addr := strings.TrimPrefix(strings.TrimPrefix(c.creds.Address, "https://"), "wss://")
	url := "wss://" + strings.TrimSuffix(addr, "/") + "/ws"

	header := http.Header{}
	if c.creds.Rune != "" {
		header.Set("Rune", c.creds.Rune)
	}

	conn, _, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: open CLN notification socket: %v", ErrConnection, err)
	}

	out := make(chan RawEvent, 32)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.log.WithError(err).Debug("CLN stream closed")
				}
				return
			}

			evt, err := parseClnNotification(msg)
			if err != nil {
				c.log.WithError(err).Warn("dropping malformed CLN event")
				continue
			}
			if evt == nil {
				continue
			}
			if selector != event.CategoryAll && evt.Category() != selector {
				continue
			}

			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	return out, nil
}

func parseClnNotification(msg []byte) (RawEvent, error) {
	if !gjson.ValidBytes(msg) {
		return nil, fmt.Errorf("%w: invalid JSON frame", ErrProtocol)
	}
	root := gjson.ParseBytes(msg)

	if opened := root.Get("channel_opened"); opened.Exists() {
		return ClnChannelOpened{
			PeerID:       opened.Get("id").String(),
			FundingMsat:  opened.Get("funding_msat").Int(),
			FundingTxID:  opened.Get("funding_txid").String(),
			ChannelReady: opened.Get("channel_ready").Bool(),
		}, nil
	}

	if changed := root.Get("channel_state_changed"); changed.Exists() {
		// Only terminal closes matter to the dashboard; intermediate state
		// transitions are skipped.
		newState := changed.Get("new_state").String()
		if newState != "CLOSED" && newState != "ONCHAIN" {
			return nil, nil
		}
		return ClnChannelClosed{
			PeerID:    changed.Get("peer_id").String(),
			ChannelID: changed.Get("channel_id").String(),
			Cause:     changed.Get("cause").String(),
			Message:   changed.Get("message").String(),
		}, nil
	}

	if created := root.Get("invoice_creation"); created.Exists() {
		preimage, err := decodeClnHex(created.Get("preimage").String())
		if err != nil {
			return nil, err
		}
		return ClnInvoiceCreated{
			Label:      created.Get("label").String(),
			Preimage:   preimage,
			AmountMsat: created.Get("msat").Int(),
		}, nil
	}

	if paid := root.Get("invoice_payment"); paid.Exists() {
		preimage, err := decodeClnHex(paid.Get("preimage").String())
		if err != nil {
			return nil, err
		}
		return ClnInvoiceSettled{
			Label:      paid.Get("label").String(),
			Preimage:   preimage,
			AmountMsat: paid.Get("msat").Int(),
		}, nil
	}

	if success := root.Get("sendpay_success"); success.Exists() {
		hash, err := decodeClnHex(success.Get("payment_hash").String())
		if err != nil {
			return nil, err
		}
		preimage, err := decodeClnHex(success.Get("payment_preimage").String())
		if err != nil {
			return nil, err
		}
		return ClnPaymentSucceeded{
			PaymentHash:    hash,
			Preimage:       preimage,
			AmountMsat:     success.Get("amount_msat").Int(),
			AmountSentMsat: success.Get("amount_sent_msat").Int(),
		}, nil
	}

	if failure := root.Get("sendpay_failure"); failure.Exists() {
		data := failure.Get("data")
		hash, err := decodeClnHex(data.Get("payment_hash").String())
		if err != nil {
			return nil, err
		}
		return ClnPaymentFailed{
			PaymentHash:    hash,
			AmountSentMsat: data.Get("amount_sent_msat").Int(),
			FailureMessage: failure.Get("message").String(),
		}, nil
	}

	// Notifications outside the dashboard's scope (blocks, forwards, ...).
	return nil, nil
}

func decodeClnHex(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: hex field: %v", ErrProtocol, err)
	}
	return b, nil
}
