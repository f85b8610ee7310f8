package lightning

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/domain/node"
	"github.com/lnwatch/dashboard/pkg/logger"
)

// LndClient streams events from an LND node over its REST websocket proxy.
type LndClient struct {
	creds  node.Credentials
	dialer *websocket.Dialer
	log    *logger.Logger
}

var _ Client = (*LndClient)(nil)

// NewLndClient builds a client from cached LND credentials. The TLS
// certificate, when present, pins the node identity.
func NewLndClient(creds node.Credentials, log *logger.Logger) (*LndClient, error) {
	if log == nil {
		log = logger.NewDefault("lnd-client")
	}

	tlsCfg := &tls.Config{}
	if creds.TLSCert != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(creds.TLSCert)) {
			return nil, fmt.Errorf("%w: invalid LND TLS certificate", ErrConnection)
		}
		tlsCfg.RootCAs = pool
	}

	return &LndClient{
		creds: creds,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  tlsCfg,
		},
		log: log.WithField("node_id", creds.NodeID),
	}, nil
}

func (c *LndClient) NodeID() string { return c.creds.NodeID }

// Close is a no-op; all connection state is owned by open feeds.
func (c *LndClient) Close() error { return nil }

type lndStream struct {
	path  string
	parse func(msg []byte) (RawEvent, error)
}

func (c *LndClient) streams(selector event.Category) ([]lndStream, error) {
	channel := lndStream{path: "/v1/channels/subscribe", parse: parseLndChannelMessage}
	invoice := lndStream{path: "/v1/invoices/subscribe", parse: parseLndInvoiceMessage}
	payment := lndStream{path: "/v2/router/payments", parse: parseLndPaymentMessage}

	switch selector {
	case event.CategoryChannel:
		return []lndStream{channel}, nil
	case event.CategoryInvoice:
		return []lndStream{invoice}, nil
	case event.CategoryPayment:
		return []lndStream{payment}, nil
	case event.CategoryAll:
		return []lndStream{channel, invoice, payment}, nil
	default:
		return nil, fmt.Errorf("no LND stream for category %q", selector)
	}
}

// OpenEventFeed opens the websocket streams backing the selected category and
// merges them into a single feed.
func (c *LndClient) OpenEventFeed(ctx context.Context, selector event.Category) (<-chan RawEvent, error) {
	streams, err := c.streams(selector)
	if err != nil {
		return nil, err
	}

	conns := make([]*websocket.Conn, 0, len(streams))
	for _, stream := range streams {
		conn, err := c.dial(ctx, stream.path)
		if err != nil {
			for _, open := range conns {
				open.Close()
			}
			return nil, fmt.Errorf("%w: open %s: %v", ErrConnection, stream.path, err)
		}
		conns = append(conns, conn)
	}

	out := make(chan RawEvent, 32)
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go c.readLoop(ctx, &wg, conn, streams[i].parse, out)
	}
	go func() {
		wg.Wait()
		close(done)
		close(out)
	}()
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		for _, conn := range conns {
			conn.Close()
		}
	}()

	return out, nil
}

func (c *LndClient) dial(ctx context.Context, path string) (*websocket.Conn, error) {
	addr := strings.TrimPrefix(strings.TrimPrefix(c.creds.Address, "https://"), "wss://")
	url := "wss://" + strings.TrimSuffix(addr, "/") + path + "?method=GET"

	header := http.Header{}
	header.Set("Grpc-Metadata-Macaroon", c.creds.Macaroon)

	conn, _, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *LndClient) readLoop(ctx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, parse func([]byte) (RawEvent, error), out chan<- RawEvent) {
	defer wg.Done()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.WithError(err).Debug("LND stream closed")
			}
			return
		}

		evt, err := parse(msg)
		if err != nil {
			c.log.WithError(err).Warn("dropping malformed LND event")
			continue
		}
		if evt == nil {
			continue
		}

		select {
		case out <- evt:
		case <-ctx.Done():
			return
		}
	}
}

// lndResult unwraps the {"result": ...} envelope the REST proxy places around
// streamed messages.
func lndResult(msg []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(msg) {
		return gjson.Result{}, fmt.Errorf("%w: invalid JSON frame", ErrProtocol)
	}
	root := gjson.ParseBytes(msg)
	if errMsg := root.Get("error"); errMsg.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: stream error: %s", ErrProtocol, errMsg.Get("message").String())
	}
	if res := root.Get("result"); res.Exists() {
		return res, nil
	}
	return root, nil
}

func parseLndChannelMessage(msg []byte) (RawEvent, error) {
	res, err := lndResult(msg)
	if err != nil {
		return nil, err
	}

	if open := res.Get("open_channel"); open.Exists() {
		return LndChannelOpened{
			Active:                open.Get("active").Bool(),
			RemotePubkey:          open.Get("remote_pubkey").String(),
			ChannelPoint:          open.Get("channel_point").String(),
			ChanID:                open.Get("chan_id").Uint(),
			Capacity:              open.Get("capacity").Int(),
			LocalBalance:          open.Get("local_balance").Int(),
			RemoteBalance:         open.Get("remote_balance").Int(),
			TotalSatoshisSent:     open.Get("total_satoshis_sent").Int(),
			TotalSatoshisReceived: open.Get("total_satoshis_received").Int(),
		}, nil
	}

	if closed := res.Get("closed_channel"); closed.Exists() {
		return LndChannelClosed{
			ChannelPoint:      closed.Get("channel_point").String(),
			ChanID:            closed.Get("chan_id").Uint(),
			ChainHash:         closed.Get("chain_hash").String(),
			ClosingTxHash:     closed.Get("closing_tx_hash").String(),
			RemotePubkey:      closed.Get("remote_pubkey").String(),
			Capacity:          closed.Get("capacity").Int(),
			CloseHeight:       uint32(closed.Get("close_height").Uint()),
			SettledBalance:    closed.Get("settled_balance").Int(),
			TimeLockedBalance: closed.Get("time_locked_balance").Int(),
			CloseType:         int32(closed.Get("close_type").Int()),
			OpenInitiator:     int32(closed.Get("open_initiator").Int()),
			CloseInitiator:    int32(closed.Get("close_initiator").Int()),
		}, nil
	}

	// Active/inactive transitions are liveness chatter, not dashboard events.
	return nil, nil
}

func parseLndInvoiceMessage(msg []byte) (RawEvent, error) {
	res, err := lndResult(msg)
	if err != nil {
		return nil, err
	}

	preimage, err := base64.StdEncoding.DecodeString(res.Get("r_preimage").String())
	if err != nil {
		return nil, fmt.Errorf("%w: invoice preimage: %v", ErrProtocol, err)
	}
	hash, err := base64.StdEncoding.DecodeString(res.Get("r_hash").String())
	if err != nil {
		return nil, fmt.Errorf("%w: invoice hash: %v", ErrProtocol, err)
	}

	invoice := LndInvoice{
		Preimage:       preimage,
		Hash:           hash,
		ValueMsat:      res.Get("value_msat").Int(),
		Memo:           res.Get("memo").String(),
		CreationDate:   res.Get("creation_date").Int(),
		PaymentRequest: res.Get("payment_request").String(),
	}

	state := strings.ToUpper(res.Get("state").String())
	switch state {
	case "OPEN", "0":
		invoice.State = 0
		return LndInvoiceCreated{invoice}, nil
	case "SETTLED", "1":
		invoice.State = 1
		return LndInvoiceSettled{invoice}, nil
	case "CANCELED", "2":
		invoice.State = 2
		return LndInvoiceCancelled{invoice}, nil
	case "ACCEPTED", "3":
		invoice.State = 3
		return LndInvoiceAccepted{invoice}, nil
	default:
		return nil, fmt.Errorf("%w: unknown invoice state %q", ErrProtocol, state)
	}
}

func parseLndPaymentMessage(msg []byte) (RawEvent, error) {
	res, err := lndResult(msg)
	if err != nil {
		return nil, err
	}

	status := strings.ToUpper(res.Get("status").String())
	switch status {
	case "SUCCEEDED", "2":
		return LndPaymentSucceeded{
			PaymentHash:     res.Get("payment_hash").String(),
			PaymentPreimage: res.Get("payment_preimage").String(),
			ValueMsat:       res.Get("value_msat").Int(),
			FeeMsat:         res.Get("fee_msat").Int(),
			CreationTimeNs:  res.Get("creation_time_ns").Int(),
			PaymentRequest:  res.Get("payment_request").String(),
		}, nil
	case "FAILED", "3":
		return LndPaymentFailed{
			PaymentHash:   res.Get("payment_hash").String(),
			ValueMsat:     res.Get("value_msat").Int(),
			FailureReason: res.Get("failure_reason").String(),
		}, nil
	default:
		// In-flight updates are not terminal; skip them.
		return nil, nil
	}
}
