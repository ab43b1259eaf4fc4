package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the minimal directory record the alert engine needs: an id to
// key submissions and alerts, and the zone whose calendar day groups scores.
type Patient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"displayName" validate:"required,max=255"`
	Timezone    string    `db:"timezone" json:"timezone,omitempty" validate:"omitempty,timezone"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
