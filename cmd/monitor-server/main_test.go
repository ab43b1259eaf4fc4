package main

import (
	"strings"
	"testing"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/config"
)

func TestPolicyFromConfig(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.Config
		wantMin      int
		wantCoverage float64
		wantErr      bool
	}{
		{"production", config.Config{AlertPolicy: config.PolicyProduction}, 3, 0.5, false},
		{"relaxed", config.Config{AlertPolicy: config.PolicyRelaxed}, 1, 0.5, false},
		{"overrides", config.Config{AlertPolicy: config.PolicyProduction, AlertMinSubmissions: 2, AlertMinCoverage: 0.75}, 2, 0.75, false},
		{"unknown", config.Config{AlertPolicy: "strict"}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := policyFromConfig(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if p.MinSubmissionsPerDay != tt.wantMin || p.MinCoverageFraction != tt.wantCoverage {
				t.Errorf("got %+v", p)
			}
		})
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{{"serve"}, {"migrate", "up"}, {"migrate", "status"}, {"sweep"}, {"purge-trash"}} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("expected command %v, got %v (%v)", path, cmd, err)
		}
	}
}

func TestRunServer_ConfigErrorsAreReturned(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	err := runServer()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL is required") {
		t.Errorf("expected missing DATABASE_URL error, got %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/monitor")
	t.Setenv("ALERT_POLICY", "strict")
	err = runServer()
	if err == nil || !strings.Contains(err.Error(), "ALERT_POLICY") {
		t.Errorf("expected invalid policy error, got %v", err)
	}
}
