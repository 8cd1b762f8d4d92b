package executors

import (
	"github.com/yurifrl/finbr/pkg/models"
)

// Status is the sync state of a local transaction.
type Status int

const (
	Synced Status = iota
	ToAdd
)

func (s Status) String() string {
	if s == Synced {
		return "synced"
	}
	return "to_add"
}

type Entry struct {
	Local  models.BankTransaction
	Status Status
}

type Report struct {
	Items  []Entry
	toSync []models.BankTransaction
}

// BuildReport marks each local transaction Synced when its FITID is already
// at the destination and ToAdd otherwise. Duplicate FITIDs within the
// statement are added once.
func BuildReport(local []models.BankTransaction, existing map[string]bool) *Report {
	items := make([]Entry, 0, len(local))
	toSync := make([]models.BankTransaction, 0)
	seen := make(map[string]bool, len(local))

	for _, lt := range local {
		status := ToAdd
		if existing[lt.FITID] || seen[lt.FITID] {
			status = Synced
		}
		seen[lt.FITID] = true

		items = append(items, Entry{Local: lt, Status: status})
		if status == ToAdd {
			toSync = append(toSync, lt)
		}
	}
	return &Report{Items: items, toSync: toSync}
}

func (r *Report) InSyncCount() int {
	return len(r.Items) - len(r.toSync)
}

func (r *Report) MissingCount() int {
	return len(r.toSync)
}

func (r *Report) TransactionsToSync() []models.BankTransaction {
	return r.toSync
}
