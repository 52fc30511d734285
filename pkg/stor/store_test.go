package stor

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"syreclabs.com/go/faker"
)

// some global vars shared by all tests
var St Store
var Keys []LicenseKey

func randomSerial() string {
	return "POS-2026-" + strings.ToUpper(faker.Lorem().Characters(6)) + "-TEST"
}

func TestMain(m *testing.M) {

	// generate random license keys
	for i := 0; i < 10; i++ {
		key := LicenseKey{}
		key.Serial = randomSerial()
		if i == 2 || i == 3 {
			key.Status = KEY_REVOKED
		} else {
			key.Status = KEY_VALID
		}
		key.MaxInstallations = 3
		key.LicenseType = "standard"
		Keys = append(Keys, key)
	}

	// create / open an sqlite db in memory
	dsn := "sqlite3://file::memory:"
	var err error
	St, err = Init(dsn)
	if err != nil {
		log.Fatalf("Failed to open the test db: %v", err)
	}

	// store the keys in the db
	for _, k := range Keys {
		err = St.LicenseKey().Create(&k)
		if err != nil {
			log.Fatalf("Failed to create a license key: %v", err)
		}
	}

	code := m.Run()
	os.Exit(code)
}

// TestLicenseKeys calls gorm functionalities related to LicenseKey
func TestLicenseKeys(t *testing.T) {
	var err error

	// check a key
	err = Keys[0].Validate()
	if err != nil {
		t.Fatalf("Invalid test key: %v", err)
	}

	// count keys
	var cnt int64
	cnt, err = St.LicenseKey().Count()
	if err != nil {
		t.Fatalf("Failed to count keys: %v", err)
	}
	if int(cnt) < len(Keys) {
		t.Fatalf("Incorrect key count: %d", cnt)
	}

	// get keys by their status
	var keys *[]LicenseKey
	keys, err = St.LicenseKey().FindByStatus(KEY_REVOKED)
	if err != nil {
		t.Fatalf("Failed to get keys by their status: %v", err)
	}
	if len(*keys) != 2 {
		t.Fatal("Failed to get 2 revoked keys")
	}

	// list all keys
	keys, err = St.LicenseKey().ListAll()
	if err != nil {
		t.Fatalf("Failed to list all keys: %v", err)
	}
	if len(*keys) == 0 {
		t.Fatal("Failed to get a list of keys: empty list")
	}

	// list keys per page (size 3, num 2)
	keys, err = St.LicenseKey().List(2, 3)
	if err != nil {
		t.Fatalf("Failed to list some keys: %v", err)
	}
	if len(*keys) == 0 {
		t.Fatalf("Failed to get a list of keys: %v", err)
	}

	// get a key by its serial number
	var key *LicenseKey
	key, err = St.LicenseKey().Get(Keys[1].Serial)
	if err != nil {
		t.Fatalf("Failed to get a key by serial number: %v", err)
	}

	// update the key status
	now := time.Now().Truncate(time.Second)
	key.Status = KEY_REVOKED
	key.StatusUpdated = &now
	err = St.LicenseKey().Update(key)
	if err != nil {
		t.Fatalf("Failed to update a key property: %v", err)
	}
	key.Status = KEY_VALID
	err = St.LicenseKey().Update(key)
	if err != nil {
		t.Fatalf("Failed to restore a key property: %v", err)
	}

	// check that the creation of a second key with the same serial is disallowed
	dup := LicenseKey{
		Serial:           Keys[1].Serial,
		Status:           KEY_VALID,
		MaxInstallations: 3,
	}
	err = St.LicenseKey().Create(&dup)
	if err == nil {
		t.Fatal("Failed to disallow the creation of 2 keys with the same serial")
	} else {
		t.Logf("Test positive, it is not possible to create a key with an already existing serial: %v", err)
	}
}

// TestReserve verifies the atomic slot reservation rules
func TestReserve(t *testing.T) {

	serial := Keys[4].Serial

	newActivation := func(hardwareID string) *Activation {
		return &Activation{
			UUID:         uuid.New().String(),
			SerialNumber: serial,
			HardwareID:   hardwareID,
			MachineName:  faker.Company().Name(),
			OS:           "linux/amd64",
			LastSeen:     time.Now().Truncate(time.Second),
		}
	}

	// fill the three slots of the key
	for i := 1; i <= 3; i++ {
		slot, err := St.Activation().Reserve(newActivation(faker.Lorem().Characters(24)), 3)
		if err != nil {
			t.Fatalf("Failed to reserve slot %d: %v", i, err)
		}
		if slot != i {
			t.Fatalf("Incorrect slot assigned: got %d, expected %d", slot, i)
		}
	}

	// a fourth machine is rejected for capacity
	_, err := St.Activation().Reserve(newActivation("hw-overflow"), 3)
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("Failed to reject a reservation above capacity: %v", err)
	}

	// the installation counter followed the reservations
	key, err := St.LicenseKey().Get(serial)
	if err != nil {
		t.Fatalf("Failed to get the key: %v", err)
	}
	if key.CurrentInstallations != 3 {
		t.Fatalf("Incorrect installation counter: %d", key.CurrentInstallations)
	}

	// reserving an already bound pair is idempotent
	activations, err := St.Activation().FindActiveByKey(serial)
	if err != nil {
		t.Fatalf("Failed to list the activations: %v", err)
	}
	bound := (*activations)[1]
	again := newActivation(bound.HardwareID)
	slot, err := St.Activation().Reserve(again, 3)
	if err != nil {
		t.Fatalf("Failed to re-reserve a bound pair: %v", err)
	}
	if slot != bound.Slot {
		t.Fatalf("Idempotent reservation changed the slot: got %d, expected %d", slot, bound.Slot)
	}
	count, _ := St.Activation().CountActive(serial)
	if count != 3 {
		t.Fatalf("Idempotent reservation consumed a slot: %d active", count)
	}

	// a hardware id bound to another key is rejected system-wide
	otherSerial := Keys[5].Serial
	foreign := newActivation(bound.HardwareID)
	foreign.SerialNumber = otherSerial
	_, err = St.Activation().Reserve(foreign, 3)
	if !errors.Is(err, ErrHardwareBound) {
		t.Fatalf("Failed to reject a hardware id bound to another key: %v", err)
	}

	// release the middle slot, it must be reassigned first
	released, err := St.Activation().Release(serial, bound.HardwareID)
	if err != nil {
		t.Fatalf("Failed to release an activation: %v", err)
	}
	if released.Status != ACTIVATION_INACTIVE {
		t.Fatalf("Released activation is still %s", released.Status)
	}
	key, _ = St.LicenseKey().Get(serial)
	if key.CurrentInstallations != 2 {
		t.Fatalf("Incorrect installation counter after release: %d", key.CurrentInstallations)
	}

	slot, err = St.Activation().Reserve(newActivation("hw-gap-filler"), 3)
	if err != nil {
		t.Fatalf("Failed to reserve the freed slot: %v", err)
	}
	if slot != bound.Slot {
		t.Fatalf("Failed to fill the smallest free slot: got %d, expected %d", slot, bound.Slot)
	}

	// releasing an unbound pair fails
	_, err = St.Activation().Release(serial, "hw-never-seen")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("Failed to reject the release of an unbound pair: %v", err)
	}
}

// TestAuditEvents calls gorm functionalities related to AuditEvent
func TestAuditEvents(t *testing.T) {

	serial := Keys[6].Serial

	for i := 0; i < 3; i++ {
		event := &AuditEvent{
			Timestamp:    time.Now().Truncate(time.Second),
			Type:         EVENT_REJECT,
			Reason:       "MAX_INSTALLATIONS_REACHED",
			SerialNumber: serial,
			HardwareID:   faker.Lorem().Characters(24),
		}
		if err := St.Audit().Create(event); err != nil {
			t.Fatalf("Failed to create an audit event: %v", err)
		}
	}

	events, err := St.Audit().List(serial)
	if err != nil {
		t.Fatalf("Failed to list audit events: %v", err)
	}
	if len(*events) != 3 {
		t.Fatalf("Incorrect audit event count: %d", len(*events))
	}

	cnt, err := St.Audit().Count(serial)
	if err != nil {
		t.Fatalf("Failed to count audit events: %v", err)
	}
	if cnt != 3 {
		t.Fatalf("Incorrect audit event count: %d", cnt)
	}
}

// TestStats verifies the dashboard aggregations
func TestStats(t *testing.T) {

	stats, err := St.Stats().GetStats(false)
	if err != nil {
		t.Fatalf("Failed to compute the stats: %v", err)
	}
	if stats.TotalKeys == 0 {
		t.Fatal("Failed to count keys in the stats")
	}
	if stats.ActiveActivations == 0 {
		t.Fatal("Failed to count activations in the stats")
	}

	// three rejections of the same hardware id cross the conflict threshold
	conflicted := "hw-conflicted"
	for i := 0; i < 3; i++ {
		event := &AuditEvent{
			Timestamp:    time.Now().Truncate(time.Second),
			Type:         EVENT_REJECT,
			Reason:       "HARDWARE_ALREADY_USED",
			SerialNumber: Keys[7].Serial,
			HardwareID:   conflicted,
		}
		if err := St.Audit().Create(event); err != nil {
			t.Fatalf("Failed to create an audit event: %v", err)
		}
	}

	hardware, err := St.Stats().GetConflictedHardware(3)
	if err != nil {
		t.Fatalf("Failed to compute the conflicted hardware list: %v", err)
	}
	found := false
	for _, h := range hardware {
		if h.HardwareID == conflicted {
			found = true
			if h.Rejections < 3 {
				t.Fatalf("Incorrect rejection count: %d", h.Rejections)
			}
		}
	}
	if !found {
		t.Fatal("Failed to report a conflicted hardware id")
	}
}

// TestActiveHardwareConstraint verifies the commit-time uniqueness of active
// hardware bindings. The per-key row lock in Reserve cannot serialize two
// transactions activating the same machine on two different keys, so the
// database itself must refuse the second insert.
func TestActiveHardwareConstraint(t *testing.T) {

	hardwareID := "hw-two-keys-at-once"

	first := &Activation{
		UUID:         uuid.New().String(),
		SerialNumber: Keys[8].Serial,
		HardwareID:   hardwareID,
		LastSeen:     time.Now().Truncate(time.Second),
	}
	if _, err := St.Activation().Reserve(first, 3); err != nil {
		t.Fatalf("Failed to reserve a slot: %v", err)
	}

	// insert a second active binding directly, as a racing transaction on
	// another key would at commit time
	duplicate := &Activation{
		UUID:         uuid.New().String(),
		SerialNumber: Keys[9].Serial,
		HardwareID:   hardwareID,
		Slot:         1,
		Status:       ACTIVATION_ACTIVE,
		LastSeen:     time.Now().Truncate(time.Second),
	}
	err := St.(*dbStore).db.Create(duplicate).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("Failed to reject a second active binding of the same hardware: %v", err)
	}

	// inactive rows are history, not bindings; they stay insertable
	history := &Activation{
		UUID:         uuid.New().String(),
		SerialNumber: Keys[9].Serial,
		HardwareID:   hardwareID,
		Slot:         1,
		Status:       ACTIVATION_INACTIVE,
		LastSeen:     time.Now().Truncate(time.Second),
	}
	if err := St.(*dbStore).db.Create(history).Error; err != nil {
		t.Fatalf("Failed to keep an inactive activation for the same hardware: %v", err)
	}
}
