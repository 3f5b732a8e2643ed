package models

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the primary key is still zero so inserts
// behave the same on Postgres and SQLite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
