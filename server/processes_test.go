//go:build !windows

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/ramnotify/processlist"
	"github.com/dreamsxin/ramnotify/processlist/mocks"
	"github.com/dreamsxin/ramnotify/types"
)

var workerOutput = []string{
	`{"record":{"pid":10,"name":"alpha","rss":3221225472,"vms":1,"cmdline":["alpha"]}}`,
	`{"record":{"pid":20,"name":"beta","rss":1073741824,"vms":5,"cmdline":["beta"]}}`,
	`{"record":{"pid":30,"name":"gamma","rss":2147483648,"vms":3,"cmdline":["gamma"]}}`,
	`{"done":true}`,
}

func printWorker(ctx context.Context) (*exec.Cmd, error) {
	args := append([]string{"-c", `printf '%s\n' "$@"`, "sh"}, workerOutput...)
	return exec.CommandContext(ctx, "sh", args...), nil
}

func newProcessFixture(t *testing.T) (*fixture, *processlist.ProcessList) {
	t.Helper()
	f := newFixture(t)

	list, err := processlist.New(processlist.Options{
		Scanner:   processlist.NewScanner(printWorker, 5*time.Second, nil, quietLogger()),
		Sampler:   f.sampler,
		Control:   new(mocks.MockProcessControl),
		Confirmer: processlist.ConfirmFunc(func(context.Context, types.Action, types.ProcessRecord) bool { return false }),
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	f.handler = New(f.engine, list, nil, quietLogger()).Handler()
	return f, list
}

func rowPIDs(rows []types.ProcessRow) []int32 {
	out := make([]int32, len(rows))
	for i, r := range rows {
		out[i] = r.PID
	}
	return out
}

func TestProcessTableRoutes(t *testing.T) {
	f, list := newProcessFixture(t)
	require.NoError(t, list.Refresh(context.Background(), nil))

	rec := f.do(t, http.MethodGet, "/api/processes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[processesResp](t, rec)
	assert.Equal(t, []int32{10, 30, 20}, rowPIDs(resp.Rows))
	assert.Equal(t, "physical", resp.Sort)
	assert.True(t, resp.Descending)
	assert.Equal(t, -1, resp.Selected)
	assert.Equal(t, 3, resp.Scanned)
	assert.InDelta(t, 25.0, resp.Rows[0].ResidentPercent, 1e-9)

	rec = f.do(t, http.MethodPost, "/api/processes/sort", `{"column": "name"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[processesResp](t, rec)
	assert.Equal(t, []int32{10, 20, 30}, rowPIDs(resp.Rows))
	assert.False(t, resp.Descending)

	rec = f.do(t, http.MethodPost, "/api/processes/sort", `{"column": "pid", "descending": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int32{30, 20, 10}, rowPIDs(decode[processesResp](t, rec).Rows))

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/processes/sort", `{"column": "cpu"}`).Code)

	rec = f.do(t, http.MethodGet, "/api/processes/find?prefix=b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["index"])

	rec = f.do(t, http.MethodGet, "/api/processes", "")
	assert.Equal(t, 1, decode[processesResp](t, rec).Selected)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/processes/find", "").Code)
}

func TestProcessRefreshInBackground(t *testing.T) {
	f, list := newProcessFixture(t)

	rec := f.do(t, http.MethodPost, "/api/processes/refresh", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return !list.Scanning() && list.Table().Len() == 3
	}, 5*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
	out := httptest.NewRecorder()
	f.handler.ServeHTTP(out, req)
	assert.True(t, strings.Contains(out.Body.String(), `"name":"gamma"`))
	assert.True(t, strings.Contains(out.Body.String(), `"scanned":3`))
}
