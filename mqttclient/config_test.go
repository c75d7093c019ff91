package mqttclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSettingsFromConnectionString(t *testing.T) {
	s, err := SettingsFromConnectionString(
		"HostName=broker.example.com;TcpPort=1883;UseTls=false;ClientId=test-client;" +
			"KeepAlive=PT30S;SessionExpiry=PT1H;ConnectionTimeout=PT5S",
	)
	require.NoError(t, err)
	require.Equal(t, "broker.example.com", s.Hostname)
	require.Equal(t, 1883, s.Port)
	require.False(t, s.UseTLS)
	require.Nil(t, s.TLSConfig)
	require.Equal(t, "test-client", s.ClientID)
	require.EqualValues(t, 30, s.KeepAlive)
	require.EqualValues(t, 3600, s.SessionExpiryInterval)
	require.Equal(t, 5*time.Second, s.ConnectionTimeout)
}

func TestSettingsFromConnectionStringDefaults(t *testing.T) {
	s, err := SettingsFromConnectionString("HostName=broker.example.com")
	require.NoError(t, err)
	require.True(t, s.UseTLS)
	require.NotNil(t, s.TLSConfig)
	require.True(t, s.CleanStart)
	require.EqualValues(t, 60, s.KeepAlive)
	require.EqualValues(t, 3600, s.SessionExpiryInterval)
	require.Equal(t, 30*time.Second, s.ConnectionTimeout)
	require.Equal(t, 8883, s.Port)
	require.NotEmpty(t, s.ClientID)
}

func TestSettingsFromConnectionStringRequiresHostname(t *testing.T) {
	_, err := SettingsFromConnectionString("TcpPort=1883")
	require.Error(t, err)
	require.IsType(t, &InvalidArgumentError{}, err)
}

func TestSettingsFromConnectionStringInvalidKeepAlive(t *testing.T) {
	_, err := SettingsFromConnectionString("HostName=h;KeepAlive=not-a-duration")
	require.Error(t, err)
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("MQTT_HOST_NAME", "broker.example.com")
	t.Setenv("MQTT_TCP_PORT", "8884")
	t.Setenv("MQTT_USE_TLS", "false")
	t.Setenv("MQTT_CLIENT_ID", "env-client")

	s, err := SettingsFromEnv()
	require.NoError(t, err)
	require.Equal(t, "broker.example.com", s.Hostname)
	require.Equal(t, 8884, s.Port)
	require.False(t, s.UseTLS)
	require.Equal(t, "env-client", s.ClientID)
}
