package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/unifi-ops/internal/models"
)

func resetFlags() {
	flagConfig = ""
	flagMode = ""
	flagAPIKey = ""
	flagHost = ""
	flagPort = 0
	flagSite = ""
	flagNoTLS = false
	flagJSON = false
	flagConfirm = false
}

func TestRootRegistersSubcommands(t *testing.T) {
	resetFlags()
	cmd := newRootCmd()
	require.NotNil(t, cmd)

	want := []string{"backup", "restore", "sites", "devices", "clients", "networks", "firewall", "vouchers", "serve"}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "subcommand %s not registered", name)
	}
}

func TestAPIKeyFlagNamesResolverEnvVar(t *testing.T) {
	resetFlags()
	cmd := newRootCmd()

	// The help text must point at the env var the config resolver
	// actually reads.
	flag := cmd.PersistentFlags().Lookup("api-key")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Usage, "UNIFI_API_KEY")
	assert.NotContains(t, flag.Usage, "UNIFI_OPS_API_KEY")
}

func TestOptionsOnlySetFlagsApply(t *testing.T) {
	resetFlags()
	cmd := newRootCmd()

	// Nothing set: no overrides, file and env values must survive.
	assert.Empty(t, options(cmd))

	flagMode = "local-proxy"
	flagHost = "gw.example.net"
	flagSite = "branch"
	assert.Len(t, options(cmd), 3)
}

func TestOptionsInsecureOnlyWhenChanged(t *testing.T) {
	resetFlags()
	cmd := newRootCmd()

	// The flag default (false) must not force verification on; only an
	// explicit --insecure participates.
	require.NoError(t, cmd.ParseFlags(nil))
	assert.Empty(t, options(cmd))

	require.NoError(t, cmd.ParseFlags([]string{"--insecure"}))
	assert.Len(t, options(cmd), 1)
}

func TestConfirmBypassedByYesFlag(t *testing.T) {
	resetFlags()
	flagConfirm = true
	assert.True(t, confirm("destroy everything?"))
}

func TestSizeLabel(t *testing.T) {
	assert.Equal(t, "512 B", sizeLabel(512))
	assert.Equal(t, "4.0 KiB", sizeLabel(4096))
	assert.Equal(t, "2.5 MiB", sizeLabel(2621440))
}

func TestRetentionLabel(t *testing.T) {
	assert.Equal(t, "indefinite", retentionLabel(models.RetentionIndefinite))
	assert.Equal(t, "30d", retentionLabel(30))
}
