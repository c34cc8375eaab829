package config

type WorkerKeyStruct struct {
	GradeAttemptsQueue     string
	GenerateQuestionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	GradeAttemptsQueue:     "grade_attempts_queue",
	GenerateQuestionsQueue: "generate_questions_queue",
}
