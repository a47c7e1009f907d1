// Package di wires the application's dependencies.
package di

import (
	"github.com/aristath/optiwealth/internal/clientdata"
	"github.com/aristath/optiwealth/internal/database"
	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/internal/modules/marketdata"
	"github.com/aristath/optiwealth/internal/modules/report"
	"github.com/aristath/optiwealth/internal/modules/toppicks"
	"github.com/aristath/optiwealth/internal/scheduler"
)

// Container holds every long-lived instance built by Wire.
// It is owned by main (or the CLI) and closed on shutdown.
type Container struct {
	DB         *database.DB
	ClientData *clientdata.Repository

	Provider   *marketdata.Provider
	Summarizer domain.SummaryGenerator
	Aggregator *report.Aggregator

	TopPicksRepo *toppicks.Repository
	TopPicksJob  *toppicks.Job
	CleanupJob   *clientdata.CleanupJob

	Scheduler *scheduler.Scheduler
}

// Close releases the database
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
