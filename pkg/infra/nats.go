package infra

import (
	"errors"
	"time"

	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/constant"
	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/nats-io/nats.go"
)

var (
	errNATSTLSIncomplete = errors.New("nats tls: client_cert, client_key and ca_cert must be set together")
	errNATSTLSRequired   = errors.New("nats tls is required in production")
)

// NewNATSConnection dials the server carrying engine events and rebate jobs.
// Production connections must use mutual TLS. Other environments use it
// only when certificates are configured.
func NewNATSConnection(cfg config.NATSCfg, environment string) (*nats.Conn, error) {
	opts, err := natsOptions(cfg, environment)
	if err != nil {
		return nil, err
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	return nats.Connect(url, opts...)
}

func natsOptions(cfg config.NATSCfg, environment string) ([]nats.Option, error) {
	log := logger.With("component", "nats", "stream", cfg.Stream)
	opts := []nats.Option{
		nats.Name("draw-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if !errors.Is(err, nats.ErrSlowConsumer) || sub == nil {
				log.Error("NATS async error", "err", err)
				return
			}
			pending, _, _ := sub.Pending()
			log.Error("Rebate consumer falling behind", "subject", sub.Subject, "pending", pending)
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	tls := cfg.TLS
	switch {
	case tls.ClientCert != "" && tls.ClientKey != "" && tls.CACert != "":
		opts = append(opts,
			nats.ClientCert(expandHome(tls.ClientCert), expandHome(tls.ClientKey)),
			nats.RootCAs(expandHome(tls.CACert)),
		)
	case tls.ClientCert != "" || tls.ClientKey != "" || tls.CACert != "":
		return nil, errNATSTLSIncomplete
	case environment == constant.EnvProduction:
		return nil, errNATSTLSRequired
	}
	return opts, nil
}
