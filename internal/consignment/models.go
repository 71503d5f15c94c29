package consignment

import "time"

// StatusNew is the initial read-model status assigned when a creation
// event omits an explicit status.
const StatusNew = "NEW"

type Consignment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
