// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

/*
Package config provides centralized configuration management for Releasekeeper.

# Configuration Sources

Configuration is layered with koanf, later layers winning:

 1. Struct defaults (defaultConfig)
 2. A YAML file: the path given with --config, else $RELEASEKEEPER_CONFIG,
    else the first of releasekeeper.yaml, releasekeeper.yml,
    /etc/releasekeeper/config.yaml, /etc/releasekeeper/config.yml
 3. Mapped environment variables

Only mapped environment variables are read. Unrelated variables never leak
into the configuration.

# Example File

	deploy:
	  root: /opt/shop
	  owner: shop
	  group: shop
	  mode: u=rwX,g=rX,o=
	source:
	  dir: /opt/shop-source
	  remote: https://git.example.com/shop.git
	backup:
	  dir: /var/backups/shop
	  retention: 7
	service:
	  manager: systemd
	  unit: shop.service
	health:
	  url: http://127.0.0.1:8080/health
	  max_attempts: 12
	  interval: 10s
	events:
	  enabled: true
	  nats_url: nats://nats.internal:4222

# Environment Variables

Deploy:
  - DEPLOY_ROOT, DEPLOY_APP_DIR, DEPLOY_OWNER, DEPLOY_GROUP, DEPLOY_MODE
  - MIN_FREE_BYTES: free space required at DEPLOY_ROOT (default: 1 GiB)

Source:
  - SOURCE_DIR, SOURCE_REMOTE, SOURCE_BRANCH_PREFIX

Backups:
  - BACKUP_DIR, BACKUP_RETENTION (default: 5), BACKUP_OPERATOR
  - BACKUP_MYSQL, BACKUP_POSTGRESQL, BACKUP_REDIS: engine toggles
  - MYSQL_DEFAULTS_FILE, POSTGRES_USER, REDIS_DATA_DIR
  - DATABASE_URL: handed to migration runners

Service:
  - SERVICE_MANAGER: systemd or process
  - SERVICE_UNIT, SERVICE_PID_FILE, SERVICE_START_COMMAND, SERVICE_WORK_DIR
  - SERVICE_STOP_GRACE (default: 30s)

Health gate:
  - HEALTH_URL, HEALTH_PORT, HEALTH_MAX_ATTEMPTS (default: 12)
  - HEALTH_INTERVAL (default: 10s), HEALTH_REQUEST_TIMEOUT (default: 5s)

Journal, events, metrics and logging:
  - JOURNAL_ENABLED, JOURNAL_PATH, JOURNAL_RETENTION
  - EVENTS_ENABLED, NATS_URL, EVENTS_SUBJECT_PREFIX
  - METRICS_TEXTFILE
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER, LOG_FILE

# Validation

Field rules are go-playground/validator tags checked through the
internal/validation package. Rules spanning fields (manager-specific
settings, backups outside the replaced tree) are checked afterwards.
*/
package config
