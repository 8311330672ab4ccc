package infra

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/logger"
	"github.com/fystack/lotto-indexer/pkg/common/stringutils"
	"github.com/nats-io/nats.go"
)

const natsClientName = "lotto-indexer"

// GetNATSConnection connects with infinite reconnects. Client certificates are
// required in production and used elsewhere when a CA is configured.
func GetNATSConnection(natsConfig config.NatsConfig, environment string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(natsClientName + "-" + environment),
		nats.MaxReconnects(-1), // retry forever
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("Disconnected from NATS", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(NatsErrHandler),
	}

	natsURL := natsConfig.URL
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	if natsConfig.Username != "" {
		opts = append(opts, nats.UserInfo(natsConfig.Username, natsConfig.Password))
	}
	if environment != constant.EnvProduction && natsConfig.TLS.CACert == "" {
		return nats.Connect(natsURL, opts...)
	}

	tls := natsConfig.TLS
	if tls.ClientCert == "" {
		tls.ClientCert = filepath.Join(".", "certs", "client-cert.pem")
	}
	if tls.ClientKey == "" {
		tls.ClientKey = filepath.Join(".", "certs", "client-key.pem")
	}
	if tls.CACert == "" {
		tls.CACert = filepath.Join(".", "certs", "rootCA.pem")
	}

	opts = append(opts,
		nats.ClientCert(stringutils.ExpandTildePath(tls.ClientCert), stringutils.ExpandTildePath(tls.ClientKey)),
		nats.RootCAs(stringutils.ExpandTildePath(tls.CACert)),
	)
	return nats.Connect(natsURL, opts...)
}

func NatsErrHandler(nc *nats.Conn, sub *nats.Subscription, natsErr error) {
	if !errors.Is(natsErr, nats.ErrSlowConsumer) || sub == nil {
		logger.Error("NATS error", "error", natsErr)
		return
	}
	pendingMsgs, _, err := sub.Pending()
	if err != nil {
		logger.Error("Error getting pending messages", "error", err)
		return
	}
	logger.Warn("Falling behind with pending messages on subject", "pending", pendingMsgs, "subject", sub.Subject)
}
