package output_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adarshvs/Recon-MCP/internal/core/output"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want string
	}{
		{"Subdomain Enumeration (subfinder)", "subdomain_enumeration_subfinder"},
		{"Resolve & grab A records (dnsx)", "resolve_grab_a_records_dnsx"},
		{"  --Port Scan--  ", "port_scan"},
		{"nmap", "nmap"},
		{"SSL Cert Info (nmap ssl-cert)", "ssl_cert_info_nmap_ssl_cert"},
		{"Café 2", "caf_2"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, output.Slug(tt.name), tt.name)
	}
}

func TestStripANSI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"plain text\n", "plain text\n"},
		{"\x1b[31mred\x1b[0m", "red"},
		{"\x1b[1;32mok\x1b[m done", "ok done"},
		{"progress\x1b[K\rnext", "progress\rnext"},
		{"a\x1b[2Jb", "ab"},
		{"keep \x1b alone", "keep \x1b alone"},
		{"[INF] \x1b[34mhttps://example.com\x1b[0m [200]", "[INF] https://example.com [200]"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, output.StripANSI(tt.in), "%q", tt.in)
	}
}

func TestSinkPersist(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	sink := output.NewSink(root)

	raw := "\x1b[32mhello\x1b[0m\xffworld\n"
	clean, err := sink.Persist("job-1", "Probe HTTP(S) (httpx)", raw)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "job-1", "probe_http_s_httpx.txt"), clean)

	b, err := os.ReadFile(clean)
	require.NoError(t, err)
	require.Equal(t, "helloworld\n", string(b))

	b, err = os.ReadFile(filepath.Join(root, "job-1", "probe_http_s_httpx.raw.txt"))
	require.NoError(t, err)
	require.Equal(t, "\x1b[32mhello\x1b[0mworld\n", string(b))

	got, err := sink.Read("job-1", "Probe HTTP(S) (httpx)", false)
	require.NoError(t, err)
	require.Equal(t, "helloworld\n", got)
}

func TestSinkPersistIsDeterministic(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	sink := output.NewSink(root)

	first, err := sink.Persist("job-2", "Port Scan (nmap)", "one")
	require.NoError(t, err)
	second, err := sink.Persist("job-2", "Port Scan (nmap)", "two")
	require.NoError(t, err)
	require.Equal(t, first, second)

	entries, err := os.ReadDir(filepath.Join(root, "job-2"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	got, err := sink.Read("job-2", "Port Scan (nmap)", true)
	require.NoError(t, err)
	require.Equal(t, "two", got)
}

func TestSinkRejectsUnsafeJobID(t *testing.T) {
	t.Parallel()
	sink := output.NewSink(t.TempDir())
	for _, id := range []string{"", "..", "../x", `a\b`} {
		_, err := sink.Persist(id, "step", "x")
		require.ErrorIs(t, err, output.ErrInvalidJobID, id)
	}
}

func TestSinkFallbackSlug(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	clean, err := output.NewSink(root).Persist("job-3", "???", "x")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "job-3", "step.txt"), clean)
}
