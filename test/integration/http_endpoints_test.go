//go:build integration
// +build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/paramsearch/internal/app"
	"github.com/GoSim-25-26J-441/paramsearch/internal/statusd"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestIntegration_StatusEndpointsDuringSearch(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.MaxEvaluations = 0
	cfg.Storage.Backend = "memory"

	search, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	defer search.Close()

	driver := search.Driver()
	httpSrv := httptest.NewServer(statusd.NewHTTPServer(driver, search.Recorder().Handler()).Handler())
	defer httpSrv.Close()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	grpcSrv := grpc.NewServer()
	status := statusd.NewGRPCServer(driver)
	status.Register(grpcSrv)
	go func() { _ = grpcSrv.Serve(lis) }()
	defer grpcSrv.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go status.Watch(ctx)

	type result struct {
		summary models.Summary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := search.Run(ctx)
		done <- result{s, err}
	}()

	deadline := time.Now().Add(30 * time.Second)
	for {
		var snap models.Snapshot
		if code := getJSON(t, httpSrv.URL+"/v1/status", &snap); code != http.StatusOK {
			t.Fatalf("/v1/status returned %d", code)
		}
		if snap.Trials >= 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("search made no progress: %+v", snap)
		}
		time.Sleep(20 * time.Millisecond)
	}

	var page struct {
		Total  int            `json:"total"`
		Trials []models.Trial `json:"trials"`
	}
	if code := getJSON(t, httpSrv.URL+"/v1/trials?limit=3", &page); code != http.StatusOK {
		t.Fatalf("/v1/trials returned %d", code)
	}
	if len(page.Trials) != 3 || page.Total < 5 {
		t.Fatalf("unexpected trials page: total=%d len=%d", page.Total, len(page.Trials))
	}

	var best models.BestResult
	if code := getJSON(t, httpSrv.URL+"/v1/best", &best); code != http.StatusOK {
		t.Fatalf("/v1/best returned %d", code)
	}

	resp, err := http.Get(httpSrv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `paramsearch_evaluations_total{result="success"}`) {
		t.Fatalf("metrics missing evaluation counter:\n%s", body)
	}

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc dial: %v", err)
	}
	defer conn.Close()

	rpcCtx, rpcCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer rpcCancel()
	st, err := statusd.GetStatus(rpcCtx, conn)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if got := st.GetFields()["run_id"].GetStringValue(); got != cfg.RunID {
		t.Fatalf("expected run_id %q, got %q", cfg.RunID, got)
	}

	// interrupt the search the way SIGINT does
	cancel()
	var res result
	select {
	case res = <-done:
	case <-time.After(30 * time.Second):
		t.Fatalf("search did not drain after interrupt")
	}
	if res.err != nil {
		t.Fatalf("Run: %v", res.err)
	}
	if !res.summary.ShuttingDown || res.summary.Heatmap == "" {
		t.Fatalf("unexpected summary after interrupt: %+v", res.summary)
	}

	health, err := healthpb.NewHealthClient(conn).Check(rpcCtx, &healthpb.HealthCheckRequest{Service: statusd.ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if health.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %v", health.GetStatus())
	}
}
