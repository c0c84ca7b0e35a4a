/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/castbridge/pkg/config"
	"github.com/carverauto/castbridge/pkg/core"
	"github.com/carverauto/castbridge/pkg/core/api"
	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/scan"
	"github.com/carverauto/castbridge/pkg/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to castbridge config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadFromFile(ctx, *configPath)
	if err != nil {
		return err
	}

	lg, err := logger.NewComponent("castbridge", cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	scanner := scan.NewMDNSScanner(time.Duration(cfg.Scan.Timeout), lg)

	engine := core.NewEngine(cfg, scanner, st, lg)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Stop()

	server := api.NewAPIServer(engine, cfg.ListenAddr, lg)

	return server.Start(ctx)
}
