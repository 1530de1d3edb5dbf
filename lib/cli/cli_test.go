// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type request struct {
	method string
	uri    string
}

func runCmd(t *testing.T, handler http.HandlerFunc, args ...string) (string, []request) {
	var mu sync.Mutex
	var reqs []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqs = append(reqs, request{method: r.Method, uri: r.URL.RequestURI()})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	rootCmd := GetRootCmd(srv.Client())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	addr := strings.TrimPrefix(srv.URL, "http://")
	rootCmd.SetArgs(append([]string{"--curls", addr}, args...))
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String(), reqs
}

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

func TestHealthCmd(t *testing.T) {
	out, reqs := runCmd(t, okHandler(`{"connections":1}`), "health")
	require.Equal(t, "{\"connections\":1}\n", out)
	require.Equal(t, []request{{http.MethodGet, "/api/debug/health"}}, reqs)
}

func TestConfigCmd(t *testing.T) {
	_, reqs := runCmd(t, okHandler(""), "config", "get")
	require.Equal(t, []request{{http.MethodGet, "/api/admin/config/"}}, reqs)
	_, reqs = runCmd(t, okHandler(""), "config", "get", "--format", "json")
	require.Equal(t, []request{{http.MethodGet, "/api/admin/config/?format=json"}}, reqs)
}

func TestConnCmd(t *testing.T) {
	_, reqs := runCmd(t, okHandler("[]"), "conn", "list")
	require.Equal(t, []request{{http.MethodGet, "/api/connections/"}}, reqs)
	_, reqs = runCmd(t, okHandler(""), "conn", "cancel", "3", "--sponsor", "admin")
	require.Equal(t, []request{{http.MethodPost, "/api/connections/3/cancel?sponsor=admin"}}, reqs)
	_, reqs = runCmd(t, okHandler(""), "conn", "close", "3")
	require.Equal(t, []request{{http.MethodDelete, "/api/connections/3"}}, reqs)

	out, _ := runCmd(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such connection"))
	}, "conn", "close", "4")
	require.Equal(t, "not found: no such connection\n", out)
}

func TestInvalidConnID(t *testing.T) {
	rootCmd := GetRootCmd(http.DefaultClient)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"conn", "cancel", "abc"})
	require.Error(t, rootCmd.ExecuteContext(context.Background()))
}
