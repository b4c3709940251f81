package controllers

import (
	"dbmonitorapi/pkg/events"
	"dbmonitorapi/services/authz"
	"dbmonitorapi/services/backup"
	"dbmonitorapi/services/gateway"
	"dbmonitorapi/services/monitor"
	"dbmonitorapi/services/registry"
)

// Package-level collaborators, injected from main at startup. Tests inject
// instances over in-memory stores.
var (
	registrySrv *registry.Registry
	authzSrv    authz.Service
	gatewaySrv  *gateway.Gateway
	backupSrv   *backup.Exporter
	monitorSrv  *monitor.HealthMonitor
	presenceSrv *events.Presence
)

// SetRegistry injects the connection registry.
func SetRegistry(r *registry.Registry) { registrySrv = r }

// SetAuthzService injects the authorization engine.
func SetAuthzService(s authz.Service) { authzSrv = s }

// SetGateway injects the query gateway.
func SetGateway(g *gateway.Gateway) { gatewaySrv = g }

// SetBackupService injects the backup exporter.
func SetBackupService(b *backup.Exporter) { backupSrv = b }

// SetMonitor injects the health monitor.
func SetMonitor(m *monitor.HealthMonitor) { monitorSrv = m }

// SetPresence injects the presence tracker.
func SetPresence(p *events.Presence) { presenceSrv = p }
