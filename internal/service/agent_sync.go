package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"estate_sync/internal/config"
	"estate_sync/internal/domain"
	"estate_sync/internal/source/asari"
	"estate_sync/internal/textnorm"
)

const agentStatusActive = "active"

// AgentSyncService mirrors the upstream agent roster. There is no timestamp
// skip: the roster is small and every active agent is upserted each run.
type AgentSyncService struct {
	source    Source
	agents    AgentStore
	syncState SyncStateStore
	logger    *slog.Logger
	config    config.SyncConfig
}

func NewAgentSyncService(
	source Source,
	agents AgentStore,
	syncState SyncStateStore,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *AgentSyncService {
	return &AgentSyncService{
		source:    source,
		agents:    agents,
		syncState: syncState,
		logger:    logger.With("source", source.ID(), "sync", "agents"),
		config:    cfg,
	}
}

func (s *AgentSyncService) Sync(ctx context.Context) (*domain.AgentSyncReport, error) {
	startTime := time.Now()
	report := &domain.AgentSyncReport{RunID: uuid.NewString()}
	logger := s.logger.With("run_id", report.RunID)

	logger.Info("starting agent sync", "source_name", s.source.Name())

	roster, err := s.source.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch agents: %w", err)
	}

	active := make([]asari.Agent, 0, len(roster))
	for _, a := range roster {
		if strings.EqualFold(strings.TrimSpace(a.Status), agentStatusActive) {
			active = append(active, a)
		}
	}
	report.Fetched = len(active)
	logger.Info("fetched agent roster", "total", len(roster), "active", len(active))

	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	keep := make([]int64, 0, len(active))
	used := make(map[string]bool, len(active))
	for _, a := range active {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(startTime)
			return report, err
		}
		keep = append(keep, a.ID)

		agent := s.toDomain(logger, a)
		slug, err := s.assignSlug(ctx, agent.Slug, a.ID, used)
		if err != nil {
			report.Errors++
			logger.Error("failed to assign agent slug",
				"external_id", a.ID,
				"error", err,
			)
			continue
		}
		agent.Slug = slug
		agent.ImagePath = domain.AgentImagePath(s.config.AgentImageDir, slug)

		created, err := s.agents.Upsert(ctx, agent)
		if err != nil {
			report.Errors++
			logger.Error("failed to upsert agent",
				"external_id", a.ID,
				"slug", agent.Slug,
				"error", err,
			)
			continue
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	if len(active) == 0 && !s.config.ArchiveOnEmptyManifest {
		logger.Warn("empty active roster, skipping deactivation")
	} else {
		n, err := s.agents.DeactivateMissing(ctx, keep)
		if err != nil {
			return nil, fmt.Errorf("deactivate missing agents: %w", err)
		}
		report.Deactivated = int(n)
	}

	if err := s.updateSyncState(ctx, report); err != nil {
		report.Duration = time.Since(startTime)
		return report, fmt.Errorf("update sync state: %w", err)
	}

	report.Duration = time.Since(startTime)

	logger.Info("agent sync completed",
		"fetched", report.Fetched,
		"created", report.Created,
		"updated", report.Updated,
		"deactivated", report.Deactivated,
		"errors", report.Errors,
		"duration", report.Duration,
	)

	return report, nil
}

// toDomain maps an upstream agent with its base slug; the final slug is
// set by assignSlug.
func (s *AgentSyncService) toDomain(logger *slog.Logger, a asari.Agent) *domain.Agent {
	slug := domain.AgentSlug(a.FirstName, a.LastName)
	if slug == "" {
		slug = "agent"
	}

	agent := &domain.Agent{
		ExternalID: a.ID,
		FirstName:  textnorm.CollapseSpaces(a.FirstName),
		LastName:   textnorm.CollapseSpaces(a.LastName),
		Slug:       slug,
		Email:      nonEmpty(a.Email),
		Phone:      nonEmpty(a.PhoneNumber),
		Position:   nonEmpty(a.Position),
		ImagePath:  domain.AgentImagePath(s.config.AgentImageDir, slug),
		IsActive:   true,
	}

	if a.LastActivity != nil && strings.TrimSpace(*a.LastActivity) != "" {
		t, err := asari.ParseTime(*a.LastActivity)
		if err != nil {
			logger.Warn("unparseable agent activity timestamp",
				"external_id", a.ID,
				"value", *a.LastActivity,
			)
		} else {
			agent.LastActivityExternal = &t
		}
	}

	return agent
}

// assignSlug keeps base unless it is already used in this run or stored for
// a different agent, active or not; then the external id is appended.
// Agents are processed in external id order, so the outcome does not depend
// on roster order.
func (s *AgentSyncService) assignSlug(ctx context.Context, base string, externalID int64, used map[string]bool) (string, error) {
	if !used[base] {
		owner, found, err := s.agents.SlugOwner(ctx, base)
		if err != nil {
			return "", fmt.Errorf("look up slug %q: %w", base, err)
		}
		if !found || owner == externalID {
			used[base] = true
			return base, nil
		}
	}

	slug := base + "-" + strconv.FormatInt(externalID, 10)
	used[slug] = true
	return slug, nil
}

func (s *AgentSyncService) updateSyncState(ctx context.Context, report *domain.AgentSyncReport) error {
	state, err := s.syncState.Get(ctx, domain.SyncSourceAgents)
	if err != nil {
		return err
	}

	state.SourceID = domain.SyncSourceAgents
	state.LastSyncedAt = time.Now()
	state.TotalSynced += int64(report.Created + report.Updated)

	return s.syncState.Update(ctx, state)
}
