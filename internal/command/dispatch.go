package command

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/qthlink/qthlink/internal/entity"
	"github.com/qthlink/qthlink/internal/format"
)

// Dispatcher executes validated commands against the entity cache and
// provider. Each dispatch pins one cache snapshot: the numeric id the
// caller typed resolves against the same generation it was validated
// against, even if a refresh lands mid-command.
type Dispatcher struct {
	cache    *entity.Cache
	provider entity.Provider
	ranges   entity.Ranges
	pageSize int
	log      zerolog.Logger
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(cache *entity.Cache, provider entity.Provider, ranges entity.Ranges, pageSize int, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cache:    cache,
		provider: provider,
		ranges:   ranges,
		pageSize: pageSize,
		log:      log,
	}
}

// Dispatch runs one command and returns the response lines. Upstream
// provider failures come back as a generic caller message; the detail
// goes to the log only.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) []string {
	switch cmd.Kind {
	case KindHelp:
		return format.Help()
	case KindQuit:
		return []string{format.Farewell}
	case KindRefresh:
		return d.refresh(ctx)
	case KindUnknown:
		return []string{format.Err("Command not implemented")}
	}

	snap, err := d.cache.List(ctx, true)
	if err != nil {
		d.log.Error().Err(err).Str("command", cmd.Kind.String()).Msg("entity cache unavailable")
		return []string{format.Err("No devices found"), "Check backend connection"}
	}

	if verr := Validate(cmd, snap, d.ranges); verr != nil {
		return verr.Lines()
	}

	switch cmd.Kind {
	case KindList:
		return d.list(snap, cmd.Page)
	case KindAutomations:
		return d.automations(snap, cmd.Page)
	case KindShow:
		e, _ := snap.ByNumericID(cmd.ID)
		return format.EntityDetail(e)
	case KindOn:
		e, _ := snap.ByNumericID(cmd.ID)
		if err := d.provider.TurnOn(ctx, e.NativeID); err != nil {
			d.log.Error().Err(err).Str("entity", e.NativeID).Msg("turn on failed")
			return []string{format.Err("Failed to turn on device")}
		}
		return []string{format.OK(e.Name + " turned on")}
	case KindOff:
		e, _ := snap.ByNumericID(cmd.ID)
		if err := d.provider.TurnOff(ctx, e.NativeID); err != nil {
			d.log.Error().Err(err).Str("entity", e.NativeID).Msg("turn off failed")
			return []string{format.Err("Failed to turn off device")}
		}
		return []string{format.OK(e.Name + " turned off")}
	case KindSet:
		e, _ := snap.ByNumericID(cmd.ID)
		if err := d.provider.SetValue(ctx, e.NativeID, cmd.Value); err != nil {
			d.log.Error().Err(err).Str("entity", e.NativeID).Msg("set value failed")
			return []string{format.Err("Failed to set device")}
		}
		return []string{format.OK(fmt.Sprintf("%s set to %g", e.Name, cmd.Value))}
	case KindTrigger:
		e, _ := snap.ByNumericID(cmd.ID)
		if err := d.provider.TriggerAutomation(ctx, e.NativeID); err != nil {
			d.log.Error().Err(err).Str("entity", e.NativeID).Msg("trigger failed")
			return []string{format.Err("Failed to trigger automation")}
		}
		return []string{format.OK(e.Name + " triggered")}
	}
	return []string{format.Err("Command not implemented")}
}

func (d *Dispatcher) list(snap *entity.Snapshot, page int) []string {
	if snap.Len() == 0 {
		return []string{format.Err("No devices found"), "Check backend connection"}
	}
	if page < 1 {
		page = 1
	}
	return format.Page(snap.Entities, page, d.pageSize, "DEVICES")
}

func (d *Dispatcher) automations(snap *entity.Snapshot, page int) []string {
	var automations []entity.Entity
	for _, e := range snap.Entities {
		if e.Domain == entity.DomainAutomation {
			automations = append(automations, e)
		}
	}
	if len(automations) == 0 {
		return []string{format.Err("No automations found")}
	}
	if page < 1 {
		page = 1
	}
	return format.Page(automations, page, d.pageSize, "AUTOMATIONS")
}

func (d *Dispatcher) refresh(ctx context.Context) []string {
	n, err := d.cache.Refresh(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("cache refresh failed")
		return []string{format.Err("Failed to refresh")}
	}
	return []string{format.OK(fmt.Sprintf("Refreshed %d entities", n))}
}
