// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"

	"github.com/pingcap/shardproxy/lib/util/errors"
	"go.uber.org/zap"
)

type Context struct {
	Logger *zap.Logger
	Client *http.Client
	CUrls  []string
}

// doRequest tries the addresses in a random order until one of them answers.
func doRequest(ctx context.Context, bctx *Context, method string, url string, rd io.Reader) (string, error) {
	var sep string
	if len(url) > 0 && url[0] != '/' {
		sep = "/"
	}

	var rete string
	for _, i := range rand.Perm(len(bctx.CUrls)) {
		req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("http://%s%s%s", bctx.CUrls[i], sep, url), rd)
		if err != nil {
			return "", errors.WithStack(err)
		}

		res, err := bctx.Client.Do(req)
		if err != nil {
			bctx.Logger.Warn("request failed", zap.String("addr", bctx.CUrls[i]), zap.Error(err))
			rete = err.Error()
			continue
		}
		resb, _ := io.ReadAll(res.Body)
		_ = res.Body.Close()

		switch res.StatusCode {
		case http.StatusOK:
			return string(resb), nil
		case http.StatusBadRequest:
			return fmt.Sprintf("bad request: %s", string(resb)), nil
		case http.StatusNotFound:
			return fmt.Sprintf("not found: %s", string(resb)), nil
		case http.StatusInternalServerError:
			rete = fmt.Sprintf("internal error: %s", string(resb))
			continue
		default:
			rete = fmt.Sprintf("%s: %s", res.Status, string(resb))
			continue
		}
	}

	return rete, nil
}
