package config

type WorkerKeyStruct struct {
	PersistViolationsQueue  string
	PendingSubmissionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue:  "persist_violations_queue",
	PendingSubmissionsQueue: "pending_submissions_queue",
}
