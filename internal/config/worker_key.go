package config

type WorkerKeyStruct struct {
	PersistCheatsQueue string
	AutoGradeQueue     string
}

var WorkerKey = &WorkerKeyStruct{
	PersistCheatsQueue: "persist_cheats_queue",
	AutoGradeQueue:     "auto_grade_queue",
}
