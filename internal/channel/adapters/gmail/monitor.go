package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/robfig/cron/v3"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/adapterutil"
	"github.com/ResslAI-Salesforce/dalo-2/internal/supervise"
)

// idleTimeout restarts IDLE well under the common 29-minute server
// limit.
const idleTimeout = 24 * time.Minute

// Connect starts the mailbox monitor for an account. The monitor runs
// supervised: transient IMAP drops reconnect with backoff, rejected
// credentials stop the loop. Scans are driven by the account's poll
// schedule and by server notifications while the connection parks in
// IDLE.
func (a *Adapter) Connect(ctx context.Context, cfg channel.Config, handler channel.InboundHandler) (channel.Connection, error) {
	account, err := parseConfig(cfg.Credentials)
	if err != nil {
		a.logger.Error("decode config failed", slog.String("account", cfg.ID), slog.Any("error", err))
		return nil, err
	}

	connCtx, cancel := context.WithCancel(ctx)
	m := &monitor{
		adapter: a,
		logger:  a.logger.With(slog.String("account", cfg.ID)),
		cfg:     cfg,
		account: account,
		handler: handler,
		nudge:   make(chan struct{}, 1),
	}

	scheduler := cron.New(cron.WithParser(pollParser))
	if _, err := scheduler.AddFunc(account.PollSchedule, m.requestScan); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid poll_schedule: %w", err)
	}
	scheduler.Start()

	conn := channel.NewConnection(cfg, func(context.Context) error {
		cancel()
		scheduler.Stop()
		return nil
	})

	go func() {
		err := supervise.Run(connCtx, m.logger, "gmail:"+cfg.ID, supervise.Options{}, m.run)
		if err != nil && connCtx.Err() == nil {
			m.logger.Error("mailbox monitor stopped", slog.Any("error", err))
		}
		scheduler.Stop()
		conn.MarkStopped()
	}()
	return conn, nil
}

type monitor struct {
	adapter *Adapter
	logger  *slog.Logger
	cfg     channel.Config
	account accountConfig
	handler channel.InboundHandler
	nudge   chan struct{}
}

// requestScan nudges the monitor loop; extra nudges while one is
// pending coalesce.
func (m *monitor) requestScan() {
	select {
	case m.nudge <- struct{}{}:
	default:
	}
}

// run is one supervised connection session: dial, authenticate, scan,
// then alternate between IDLE and scans until the context ends or the
// connection breaks.
func (m *monitor) run(ctx context.Context) error {
	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.Select(m.account.Mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", m.account.Mailbox, err)
	}
	m.logger.Info("mailbox monitor connected", slog.String("mailbox", m.account.Mailbox))

	if err := m.scan(ctx, client); err != nil {
		return err
	}
	supportsIdle := client.Caps().Has(imap.CapIdle)
	for {
		if supportsIdle {
			if err := m.idleWait(ctx, client); err != nil {
				return err
			}
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.nudge:
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.scan(ctx, client); err != nil {
			return err
		}
	}
}

func (m *monitor) dial(ctx context.Context) (*imapclient.Client, error) {
	addr := net.JoinHostPort(m.account.IMAPHost, strconv.Itoa(m.account.IMAPPort))
	options := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					m.requestScan()
				}
			},
		},
	}
	client, err := imapclient.DialTLS(addr, options)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if m.account.useOAuth() {
		token, err := m.adapter.accessToken(m.account)
		if err != nil {
			client.Close()
			return nil, err
		}
		if err := client.Authenticate(sasl.NewXoauth2Client(m.account.Address, token)); err != nil {
			client.Close()
			return nil, supervise.Terminal(fmt.Errorf("imap xoauth2: %w", err))
		}
	} else {
		if err := client.Login(m.account.Address, m.account.Password).Wait(); err != nil {
			client.Close()
			return nil, supervise.Terminal(fmt.Errorf("imap login: %w", err))
		}
	}
	return client, nil
}

// idleWait parks the connection in IDLE until a nudge, a server
// notification, or the keepalive timeout.
func (m *monitor) idleWait(ctx context.Context, client *imapclient.Client) error {
	idle, err := client.Idle()
	if err != nil {
		return fmt.Errorf("idle: %w", err)
	}
	keepalive := time.NewTimer(idleTimeout)
	defer keepalive.Stop()
	select {
	case <-ctx.Done():
	case <-m.nudge:
	case <-keepalive.C:
	}
	if err := idle.Close(); err != nil {
		return fmt.Errorf("stop idle: %w", err)
	}
	if err := idle.Wait(); err != nil {
		return fmt.Errorf("idle: %w", err)
	}
	return ctx.Err()
}

// scan fetches unseen messages, hands them to the inbound pipeline, and
// marks everything fetched \Seen so a restart does not re-ingest mailbox
// history. Redelivery races are the dedup cache's problem, not ours.
func (m *monitor) scan(ctx context.Context, client *imapclient.Client) error {
	data, err := client.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	section := &imap.FetchItemBodySection{}
	fetched, err := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return fmt.Errorf("fetch unseen: %w", err)
	}

	handled := make([]imap.UID, 0, len(fetched))
	for _, buf := range fetched {
		handled = append(handled, buf.UID)
		raw := buf.FindBodySection(section)
		if len(raw) == 0 {
			continue
		}
		msg, err := parseInbound(m.cfg, raw)
		if err != nil {
			m.logger.Warn("parse message failed", slog.Any("error", err))
			continue
		}
		m.logger.Info("inbound received",
			slog.String("message_id", msg.Message.ID),
			slog.String("from", msg.Sender.ExternalID),
			slog.String("text", adapterutil.SummarizeText(msg.Message.Text)))
		if err := m.handler(ctx, m.cfg, msg); err != nil {
			m.logger.Error("handle inbound failed",
				slog.String("message_id", msg.Message.ID),
				slog.Any("error", err))
		}
	}
	if len(handled) == 0 {
		return nil
	}
	err = client.Store(imap.UIDSetNum(handled...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil).Close()
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}
