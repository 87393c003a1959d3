// Package cmd provides common initialization for the command-line daemons.
package cmd

import (
	"log/slog"

	"github.com/fieldflow/fieldflow/pkg/actions/branch"
	"github.com/fieldflow/fieldflow/pkg/actions/createtask"
	"github.com/fieldflow/fieldflow/pkg/actions/logaction"
	"github.com/fieldflow/fieldflow/pkg/actions/sendemail"
	"github.com/fieldflow/fieldflow/pkg/actions/transform"
	"github.com/fieldflow/fieldflow/pkg/actions/updatefield"
	"github.com/fieldflow/fieldflow/pkg/actions/wait"
	"github.com/fieldflow/fieldflow/pkg/actions/webhook"
	"github.com/fieldflow/fieldflow/pkg/registry"
)

// NewRegistry creates an action registry with every native action
// registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(webhook.NewActionFactory())
	reg.RegisterAction(updatefield.NewActionFactory())
	reg.RegisterAction(createtask.NewActionFactory())
	reg.RegisterAction(sendemail.NewActionFactory())
	reg.RegisterAction(logaction.NewActionFactory())
	reg.RegisterAction(wait.NewActionFactory())
	reg.RegisterAction(branch.NewActionFactory())
	reg.RegisterAction(transform.NewActionFactory())

	return reg
}
