package local

import (
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

// St is the store shared by all tests
var St Store

func TestMain(m *testing.M) {

	// create / open an sqlite db in memory
	var err error
	St, err = Init("file::memory:?cache=shared")
	if err != nil {
		log.Fatalf("Failed to open the test db: %v", err)
	}

	code := m.Run()
	os.Exit(code)
}

// TestEntitlement verifies the lifecycle of the single entitlement row
func TestEntitlement(t *testing.T) {

	// the first access creates the initial trial state
	e, err := St.Entitlement().Get()
	if err != nil {
		t.Fatalf("Failed to get the entitlement: %v", err)
	}
	if e.LicenseStatus != LIC_TRIAL || e.TotalTransactions != 0 {
		t.Fatalf("Incorrect initial entitlement: %+v", e)
	}

	// updates persist
	now := time.Now().Truncate(time.Second)
	e.TotalTransactions = 12
	e.LicenseStatus = LIC_ACTIVATED
	e.SerialNumber = "POS-2026-ABC234-DEFG"
	e.ActivationDate = &now
	if err = St.Entitlement().Update(e); err != nil {
		t.Fatalf("Failed to update the entitlement: %v", err)
	}

	e, err = St.Entitlement().Get()
	if err != nil {
		t.Fatalf("Failed to re-read the entitlement: %v", err)
	}
	if e.TotalTransactions != 12 || e.LicenseStatus != LIC_ACTIVATED {
		t.Fatalf("Entitlement changes were not persisted: %+v", e)
	}

	// a second Get returns the same row, not a new one
	again, err := St.Entitlement().Get()
	if err != nil {
		t.Fatalf("Failed to get the entitlement again: %v", err)
	}
	if again.ID != e.ID {
		t.Fatal("Failed to keep a single entitlement row")
	}

	// reset restores the initial trial condition
	if err = St.Entitlement().Reset(); err != nil {
		t.Fatalf("Failed to reset the entitlement: %v", err)
	}
	e, err = St.Entitlement().Get()
	if err != nil {
		t.Fatalf("Failed to get the entitlement after reset: %v", err)
	}
	if e.LicenseStatus != LIC_TRIAL || e.TotalTransactions != 0 || e.SerialNumber != "" {
		t.Fatalf("Incorrect entitlement after reset: %+v", e)
	}
}

// TestPreloadedKeys verifies the offline key directory
func TestPreloadedKeys(t *testing.T) {

	expires := time.Now().AddDate(0, 0, 30).Truncate(time.Second)
	key := &PreloadedKey{
		SerialNumber:     "POS-2026-OFFLNE-AAAA",
		Valid:            true,
		MaxInstallations: 3,
		LicenseType:      "development",
		Expires:          &expires,
	}
	if err := St.Preloaded().Upsert(key); err != nil {
		t.Fatalf("Failed to upsert a preloaded key: %v", err)
	}

	// reseeding the same serial is idempotent
	key2 := &PreloadedKey{
		SerialNumber:     "POS-2026-OFFLNE-AAAA",
		Valid:            false,
		MaxInstallations: 1,
		LicenseType:      "development",
	}
	if err := St.Preloaded().Upsert(key2); err != nil {
		t.Fatalf("Failed to upsert the same serial twice: %v", err)
	}
	cnt, err := St.Preloaded().Count()
	if err != nil {
		t.Fatalf("Failed to count preloaded keys: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("Upsert created a duplicate entry: %d", cnt)
	}

	// the second upsert replaced the fields
	got, err := St.Preloaded().Get("POS-2026-OFFLNE-AAAA")
	if err != nil {
		t.Fatalf("Failed to get a preloaded key: %v", err)
	}
	if got.Valid || got.MaxInstallations != 1 {
		t.Fatalf("Upsert did not replace the entry: %+v", got)
	}

	// list only valid keys
	valid := &PreloadedKey{SerialNumber: "POS-2026-OFFLNE-BBBB", Valid: true, MaxInstallations: 3}
	if err := St.Preloaded().Upsert(valid); err != nil {
		t.Fatalf("Failed to upsert a valid key: %v", err)
	}
	keys, err := St.Preloaded().ListValid()
	if err != nil {
		t.Fatalf("Failed to list valid keys: %v", err)
	}
	if len(*keys) != 1 {
		t.Fatalf("Incorrect valid key count: %d", len(*keys))
	}

	// expiry
	past := time.Now().AddDate(0, 0, -1)
	expired := &PreloadedKey{SerialNumber: "POS-2026-OFFLNE-CCCC", Valid: true, Expires: &past}
	if !expired.Expired(time.Now()) {
		t.Fatal("Failed to detect an expired key")
	}
	if key.Expired(time.Now()) {
		t.Fatal("Incorrectly expired a future-dated key")
	}
	open := &PreloadedKey{SerialNumber: "POS-2026-OFFLNE-DDDD", Valid: true}
	if open.Expired(time.Now()) {
		t.Fatal("Incorrectly expired a key without an expiry date")
	}
}

// TestQueue verifies the reconciliation queue
func TestQueue(t *testing.T) {

	now := time.Now().Truncate(time.Second)
	for i := 0; i < 2; i++ {
		entry := &QueueEntry{
			SerialNumber: "POS-2026-QUEUED-AAAA",
			HardwareID:   "hw-queued",
			Timestamp:    now,
			Status:       QUEUE_PENDING,
		}
		if err := St.Queue().Create(entry); err != nil {
			t.Fatalf("Failed to create a queue entry: %v", err)
		}
	}

	entries, err := St.Queue().Pending()
	if err != nil {
		t.Fatalf("Failed to list pending entries: %v", err)
	}
	if len(*entries) != 2 {
		t.Fatalf("Incorrect pending entry count: %d", len(*entries))
	}

	// a reconciled entry leaves the pending list
	first := (*entries)[0]
	first.Status = QUEUE_RECONCILED
	first.Attempts++
	if err := St.Queue().Update(&first); err != nil {
		t.Fatalf("Failed to update a queue entry: %v", err)
	}
	entries, _ = St.Queue().Pending()
	if len(*entries) != 1 {
		t.Fatalf("Incorrect pending entry count after update: %d", len(*entries))
	}

	// clear empties the queue
	if err := St.Queue().Clear(); err != nil {
		t.Fatalf("Failed to clear the queue: %v", err)
	}
	entries, _ = St.Queue().Pending()
	if len(*entries) != 0 {
		t.Fatalf("Incorrect pending entry count after clear: %d", len(*entries))
	}
}
