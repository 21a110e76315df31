package instance

import "github.com/angelmondragon/haulbid-backend/pkg/env"

// ID names this process in logs and lock owners. DYNO is set by the
// platform; HAULBID_INSTANCE_ID overrides it for local and container runs.
func ID(fallback string) string {
	return env.First(fallback, "HAULBID_INSTANCE_ID", "DYNO")
}
