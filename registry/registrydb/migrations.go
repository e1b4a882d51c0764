// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registrydb

import (
	"github.com/energytag/gcregistry/internal/dbutil"
	"github.com/energytag/gcregistry/internal/migrate"
)

// Migration returns the registry schema migration. The same steps run on
// the write and the read store.
func (db *registryDB) Migration() *migrate.Migration {
	return &migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{
			{
				Description: "Initial setup",
				Version:     0,
				Action: migrate.SQL{
					`CREATE TABLE users (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						name text NOT NULL,
						email text NOT NULL,
						role integer NOT NULL,
						password_hash bytea,
						is_deleted boolean NOT NULL DEFAULT false,
						created_at timestamp NOT NULL
					)`,
					`CREATE UNIQUE INDEX index_users_email ON users ( email )`,
					`CREATE TABLE api_keys (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						user_id integer NOT NULL REFERENCES users( id ),
						hash bytea NOT NULL,
						created_at timestamp NOT NULL,
						expires_at timestamp NOT NULL
					)`,
					`CREATE UNIQUE INDEX index_api_keys_hash ON api_keys ( hash )`,
					`CREATE TABLE accounts (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						name text NOT NULL,
						is_deleted boolean NOT NULL DEFAULT false,
						created_at timestamp NOT NULL
					)`,
					`CREATE TABLE account_user_links (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						user_id integer NOT NULL REFERENCES users( id ),
						account_id integer NOT NULL REFERENCES accounts( id )
					)`,
					`CREATE TABLE account_whitelist_links (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						source_account_id integer NOT NULL REFERENCES accounts( id ),
						target_account_id integer NOT NULL REFERENCES accounts( id ),
						is_deleted boolean NOT NULL DEFAULT false,
						created_at timestamp NOT NULL
					)`,
					`CREATE TABLE devices (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						account_id integer NOT NULL REFERENCES accounts( id ),
						name text NOT NULL,
						local_device_identifier text NOT NULL,
						energy_source text NOT NULL,
						technology_type text NOT NULL,
						power_mw double precision NOT NULL,
						energy_mwh double precision,
						operational_date timestamp NOT NULL,
						is_storage boolean NOT NULL DEFAULT false,
						is_deleted boolean NOT NULL DEFAULT false,
						created_at timestamp NOT NULL
					)`,
					`CREATE UNIQUE INDEX index_devices_local_identifier ON devices ( local_device_identifier )`,
					`CREATE TABLE certificate_metadata (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						country_of_issuance text NOT NULL,
						connected_grid_identification text NOT NULL,
						issuing_body text NOT NULL,
						legal_status text NOT NULL,
						issuance_purpose text NOT NULL,
						support_received text NOT NULL,
						quality_scheme_reference text NOT NULL,
						dissemination_level text NOT NULL,
						issue_market_zone text NOT NULL,
						created_at timestamp NOT NULL
					)`,
					`CREATE TABLE certificate_bundles (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						issuance_id text NOT NULL,
						hash text NOT NULL,
						status text NOT NULL,
						account_id integer NOT NULL REFERENCES accounts( id ),
						metadata_id integer NOT NULL,
						range_start bigint NOT NULL,
						range_end bigint NOT NULL,
						quantity bigint NOT NULL,
						beneficiary text NOT NULL DEFAULT '',
						energy_carrier text NOT NULL,
						energy_source text NOT NULL,
						face_value bigint NOT NULL,
						issuance_post_conversion boolean NOT NULL DEFAULT false,
						emissions_factor double precision NOT NULL DEFAULT 0,
						emissions_factor_source text NOT NULL DEFAULT '',
						device_id integer NOT NULL REFERENCES devices( id ),
						production_start timestamp NOT NULL,
						production_end timestamp NOT NULL,
						expiry_date timestamp NOT NULL,
						is_storage boolean NOT NULL DEFAULT false,
						sdr_allocation_id integer,
						storage_efficiency_factor double precision,
						is_deleted boolean NOT NULL DEFAULT false,
						created_at timestamp NOT NULL
					)`,
					`CREATE INDEX index_bundles_device ON certificate_bundles ( device_id )`,
					`CREATE INDEX index_bundles_account ON certificate_bundles ( account_id )`,
					`CREATE INDEX index_bundles_issuance ON certificate_bundles ( issuance_id )`,
					`CREATE TABLE certificate_actions (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						action_type text NOT NULL,
						source_id integer NOT NULL,
						target_id integer,
						user_id integer NOT NULL,
						bundle_ids text NOT NULL,
						quantity bigint,
						percentage double precision,
						beneficiary text NOT NULL DEFAULT '',
						requested_at timestamp NOT NULL,
						completed_at timestamp NOT NULL,
						succeeded boolean NOT NULL,
						is_deleted boolean NOT NULL DEFAULT false
					)`,
					`CREATE INDEX index_actions_source ON certificate_actions ( source_id )`,
					`CREATE TABLE storage_records (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						device_id integer NOT NULL REFERENCES devices( id ),
						account_id integer NOT NULL,
						validator_id text NOT NULL,
						is_charging boolean NOT NULL,
						flow_start timestamp NOT NULL,
						flow_end timestamp NOT NULL,
						flow_energy bigint NOT NULL,
						energy_source text NOT NULL DEFAULT '',
						is_deleted boolean NOT NULL DEFAULT false,
						created_at timestamp NOT NULL
					)`,
					`CREATE INDEX index_storage_records_device ON storage_records ( device_id )`,
					`CREATE TABLE allocated_storage_records (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						device_id integer NOT NULL REFERENCES devices( id ),
						scr_id integer NOT NULL REFERENCES storage_records( id ),
						sdr_id integer NOT NULL REFERENCES storage_records( id ),
						gc_allocation_id integer,
						sdgc_allocation_id integer,
						sdr_proportion double precision NOT NULL,
						storage_efficiency_factor double precision NOT NULL,
						scr_allocation_methodology text NOT NULL DEFAULT '',
						efficiency_interval_start timestamp,
						efficiency_interval_end timestamp,
						is_deleted boolean NOT NULL DEFAULT false,
						created_at timestamp NOT NULL
					)`,
					`CREATE TABLE meter_reports (
						id integer PRIMARY KEY ` + db.autoincrement() + `,
						device_id integer NOT NULL REFERENCES devices( id ),
						interval_start timestamp NOT NULL,
						interval_end timestamp NOT NULL,
						energy_wh bigint NOT NULL,
						is_deleted boolean NOT NULL DEFAULT false,
						created_at timestamp NOT NULL
					)`,
				},
			},
		},
	}
}

// autoincrement returns the engine-specific id column modifier. SQLite
// needs AUTOINCREMENT so ids of deleted rows are never reused; postgres
// uses an identity sequence that still accepts explicit ids, which the
// read-store replay relies on.
func (db *registryDB) autoincrement() string {
	if db.impl == dbutil.Postgres {
		return "GENERATED BY DEFAULT AS IDENTITY"
	}
	return "AUTOINCREMENT"
}
