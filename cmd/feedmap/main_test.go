package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<item><title description="Product name" required="true">Red Shoe</title><brand>Acme</brand><model>R1</model></item>
<item><title>Blue Hat</title><model>B2</model></item>
</channel></rss>`

const googleRules = `rules:
  - {target: "g:title", type: rename, source: title}
  - target: "g:mpn"
    type: combine
    separator: "-"
    fields: [{field: brand}, {field: model}]
  - {target: "g:condition", type: static, value: new}
`

type cliEnv struct {
	dir       string
	config    string
	exportDir string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := cliEnv{
		dir:       dir,
		config:    filepath.Join(dir, "config.toml"),
		exportDir: filepath.Join(dir, "out"),
	}
	cfg := `[log]
level = "error"

[storage]
kind = "sqlite"
dsn = "` + filepath.ToSlash(filepath.Join(dir, "feedmap.db")) + `"

[export]
driver = "fs"
dir = "` + filepath.ToSlash(env.exportDir) + `"

[metrics]
backend = "none"
`
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "google.yaml"), []byte(googleRules), 0o600))
	return env
}

func (e cliEnv) path(name string) string { return filepath.Join(e.dir, name) }

func (e cliEnv) run(t *testing.T, stdin string, argv ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", e.config}, argv...)
	code := run(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr, http.DefaultClient)
	return code, stdout.String(), stderr.String()
}

// TestRun_Schema verifies the schema table and item count for stdin input.
func TestRun_Schema(t *testing.T) {
	t.Parallel()
	env := newCLIEnv(t)

	code, out, errOut := env.run(t, productFeed, "schema", "-")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "title")
	assert.Contains(t, out, "Product name")
	assert.Contains(t, out, "brand")
	assert.Contains(t, out, "2 items in stdin")
}

// TestRun_TransformRulesFile verifies a transform exports to the configured
// directory.
func TestRun_TransformRulesFile(t *testing.T) {
	t.Parallel()
	env := newCLIEnv(t)

	feedPath := env.path("products.xml")
	require.NoError(t, os.WriteFile(feedPath, []byte(productFeed), 0o600))

	code, out, errOut := env.run(t, "", "transform", feedPath, "--rules", env.path("google.yaml"), "--out", "google.xml")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Exported 2 items")

	b, err := os.ReadFile(filepath.Join(env.exportDir, "google.xml"))
	require.NoError(t, err)
	got := string(b)
	assert.Contains(t, got, `<rss xmlns:g="http://base.google.com/ns/1.0" version="2.0">`)
	assert.Contains(t, got, "<g:title>Red Shoe</g:title>")
	assert.Contains(t, got, "<g:mpn>Acme-R1</g:mpn>")
	assert.Contains(t, got, "<g:mpn>B2</g:mpn>")
	assert.Contains(t, got, "<g:condition>new</g:condition>")
}

// TestRun_TransformPreview verifies --preview writes the feed to stdout.
func TestRun_TransformPreview(t *testing.T) {
	t.Parallel()
	env := newCLIEnv(t)

	code, out, errOut := env.run(t, productFeed, "transform", "--rules", env.path("google.yaml"), "--preview")
	require.Equal(t, 0, code, errOut)
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`), out)
	assert.Contains(t, out, "<g:title>Blue Hat</g:title>")

	_, err := os.Stat(env.exportDir)
	assert.True(t, os.IsNotExist(err))
}

// TestRun_TransformDir verifies directory mode reports exports and skips.
func TestRun_TransformDir(t *testing.T) {
	t.Parallel()
	env := newCLIEnv(t)

	in := env.path("feeds")
	require.NoError(t, os.Mkdir(in, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(in, "a.xml"), []byte(productFeed), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(in, "bad.xml"), []byte("<rss>"), 0o600))

	code, out, errOut := env.run(t, "", "transform", "--dir", in, "--rules", env.path("google.yaml"))
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "1 exported, 1 skipped")

	_, err := os.Stat(filepath.Join(env.exportDir, "a.xml"))
	require.NoError(t, err)
}

// TestRun_ShopsAndProfiles walks shop and profile management and a transform
// driven by a saved profile.
func TestRun_ShopsAndProfiles(t *testing.T) {
	t.Parallel()
	env := newCLIEnv(t)

	code, out, errOut := env.run(t, "", "shop", "add", "acme")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Added shop acme")

	code, _, errOut = env.run(t, "", "shop", "add", "acme")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already exists")

	code, out, errOut = env.run(t, "", "shop", "list")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "acme")

	code, out, errOut = env.run(t, "", "profile", "save", "acme", "google", "--rules", env.path("google.yaml"))
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "3 rules")

	code, out, errOut = env.run(t, "", "profile", "show", "acme", "google")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "g:mpn")

	code, out, errOut = env.run(t, "", "profile", "list", "acme")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "google")
	assert.Contains(t, out, "yaml")

	code, out, errOut = env.run(t, productFeed, "transform", "--shop", "acme", "--profile", "google", "--preview")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "<g:mpn>Acme-R1</g:mpn>")

	code, _, errOut = env.run(t, productFeed, "transform", "--shop", "acme", "--profile", "bing", "--preview")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not found")
}

// TestRun_ShopFeedURL verifies a transform without input uses the shop's feed.
func TestRun_ShopFeedURL(t *testing.T) {
	t.Parallel()
	env := newCLIEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(productFeed))
	}))
	t.Cleanup(srv.Close)

	code, _, errOut := env.run(t, "", "shop", "add", "remote", "--feed-url", srv.URL+"/feed.xml")
	require.Equal(t, 0, code, errOut)
	code, _, errOut = env.run(t, "", "profile", "save", "remote", "google", "--rules", env.path("google.yaml"))
	require.Equal(t, 0, code, errOut)

	code, out, errOut := env.run(t, "", "transform", "--shop", "remote", "--profile", "google")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Exported 2 items")

	_, err := os.Stat(filepath.Join(env.exportDir, "transformed.xml"))
	require.NoError(t, err)
}

// TestRun_UsageErrors verifies invocation mistakes exit with code 2.
func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()
	env := newCLIEnv(t)

	cases := map[string][]string{
		"no rules":         {"transform", "-"},
		"rules and shop":   {"transform", "--rules", "x.yaml", "--shop", "s", "--profile", "p"},
		"shop without pro": {"transform", "--shop", "s"},
		"dir and input":    {"transform", "--dir", ".", "--rules", "x.yaml", "a.xml"},
		"unknown flag":     {"schema", "--nope"},
		"unknown command":  {"frobnicate"},
		"too many args":    {"shop", "add", "a", "b"},
		"profile no rules": {"profile", "save", "a", "b"},
	}
	for name, argv := range cases {
		t.Run(name, func(t *testing.T) {
			code, _, errOut := env.run(t, "", argv...)
			assert.Equal(t, 2, code, errOut)
		})
	}
}

// TestRun_BadConfig verifies an invalid config file is a usage error.
func TestRun_BadConfig(t *testing.T) {
	t.Parallel()
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(env.config, []byte("[storage]\nkind = \"oracle\"\n"), 0o600))

	code, _, errOut := env.run(t, productFeed, "schema", "-")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "load config")

	code, _, _ = env.run(t, "", "config", "validate")
	assert.Equal(t, 2, code)
}

// TestRun_RuntimeErrors verifies failures after a valid invocation exit 1.
func TestRun_RuntimeErrors(t *testing.T) {
	t.Parallel()
	env := newCLIEnv(t)

	code, _, errOut := env.run(t, "<rss></rss>", "schema", "-")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no <item> elements")

	code, _, _ = env.run(t, "", "schema", env.path("missing.xml"))
	assert.Equal(t, 1, code)
}

// TestRun_ConfigInit verifies the sample is written once.
func TestRun_ConfigInit(t *testing.T) {
	t.Parallel()
	env := newCLIEnv(t)
	target := env.path("nested/config.toml")

	code, out, errOut := env.run(t, "", "config", "init", target)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Wrote sample configuration")

	code, _, _ = env.run(t, "", "config", "init", target)
	assert.Equal(t, 1, code)

	code, out, errOut = env.run(t, "", "--config", target, "config", "validate")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Configuration valid")
}
