package infra

import (
	"testing"

	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSOptions(t *testing.T) {
	base, err := natsOptions(config.NATSCfg{Stream: "draw_engine"}, constant.EnvDevelopment)
	require.NoError(t, err)

	withUser, err := natsOptions(config.NATSCfg{Username: "engine", Password: "secret"}, constant.EnvDevelopment)
	require.NoError(t, err)
	assert.Len(t, withUser, len(base)+1)

	tls := config.NATSTLSCfg{ClientCert: "client.pem", ClientKey: "client-key.pem", CACert: "ca.pem"}
	withTLS, err := natsOptions(config.NATSCfg{TLS: tls}, constant.EnvProduction)
	require.NoError(t, err)
	assert.Len(t, withTLS, len(base)+2)
}

func TestNATSOptionsRejectsTLSGaps(t *testing.T) {
	_, err := natsOptions(config.NATSCfg{}, constant.EnvProduction)
	assert.ErrorIs(t, err, errNATSTLSRequired)

	_, err = natsOptions(config.NATSCfg{TLS: config.NATSTLSCfg{CACert: "ca.pem"}}, constant.EnvDevelopment)
	assert.ErrorIs(t, err, errNATSTLSIncomplete)
}
