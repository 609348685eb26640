package license

import "time"

// Activation is one domain's claim against a license's domain budget.
// (LicenseID, Domain) is unique; Domain is always canonical.
type Activation struct {
	ID            int64      `json:"id" db:"id"`
	LicenseID     int64      `json:"license_id" db:"license_id"`
	Domain        string     `json:"domain" db:"domain"`
	IPAddress     *string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string    `json:"user_agent,omitempty" db:"user_agent"`
	ActivatedAt   time.Time  `json:"activated_at" db:"activated_at"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty" db:"last_checked_at"`
}

// ActivateIfUnderLimit is the ledger's critical section as a value. A store
// executes it atomically per license:
//
//  1. lock the license row (bounded wait)
//  2. if (LicenseID, Domain) is already activated, touch last_checked_at
//  3. otherwise count activations; refuse when count >= domain_limit
//  4. insert the activation
//
// Only one ActivateIfUnderLimit for a given license runs at a time, so the
// count observed in step 3 is the count the insert in step 4 extends. The
// domain limit is read from the locked row, never from the caller.
type ActivateIfUnderLimit struct {
	LicenseID int64
	Domain    string
	IPAddress string
	UserAgent string
	At        time.Time
}

// ActivationOutcome is the committed result of an ActivateIfUnderLimit.
type ActivationOutcome struct {
	Activation *Activation
	Created    bool // false when the domain was already activated
	Used       int  // activations on the license after the operation
	Limit      *int
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewActivation builds the row inserted for op.
func (op ActivateIfUnderLimit) NewActivation() *Activation {
	at := op.At
	return &Activation{
		LicenseID:     op.LicenseID,
		Domain:        op.Domain,
		IPAddress:     optionalString(op.IPAddress),
		UserAgent:     optionalString(op.UserAgent),
		ActivatedAt:   at,
		LastCheckedAt: &at,
	}
}
