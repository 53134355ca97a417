package diary

// Display labels substituted for missing upstream values.
const (
	Unknown         = "Неизвестно"
	UnknownSubject  = "Неизвестный предмет"
	UnknownWorkType = "Неизвестный тип"
	UnknownStudent  = "Неизвестный"
	UnknownTime     = "Неизвестное время"
	UnknownTopic    = "Неизвестная тема"
	NotSpecified    = "Не указан"
	Present         = "Присутствовал"
	NoHomework      = "Нет задания"
	NoGrades        = "Нет оценок"
	NoMark          = "Нет оценки"
	NoMood          = "Нет"
)

// homeworkType is the homework category of a work item.
const homeworkType = "Homework"

// fallbackWorkTypes is used when the school work-type listing fails.
var fallbackWorkTypes = []struct{ code, name string }{
	{"CommonWork", "Работа на уроке"},
	{"DefaultNewLessonWork", "Работа на уроке"},
	{"LessonTestWork", "Контрольная работа"},
	{"Homework", "Домашняя работа"},
	{"CreativeWork", "Творческая работа"},
}

// testWeights ranks work types by how much they matter for upcoming-test
// planning.
var testWeights = map[string]int{
	"Административная контрольная работа": 10,
	"Арифметический диктант":              4,
	"Входная контрольная работа":          5,
	"Входной контрольный диктант":         5,
	"Государственная итоговая аттестация": 10,
	"Диагностическая работа":              4,
	"Диктант":                             8,
	"Зачет":                               8,
	"Интегральный зачет":                  3,
	"Итоговая контрольная работа":         9,
	"Контрольная":                         9,
	"Контрольное списывание":              7,
	"Контрольный диктант":                 9,
	"Лабораторная работа":                 7,
	"Математический диктант":              4,
	"Практическая работа":                 8,
	"Проверочная работа":                  8,
	"Работа с контурными картами":         5,
	"Словарный диктант":                   4,
	"Стартовая контрольная работа":        3,
	"Тематическая контрольная работа":     6,
	"Тест":                                5,
	"Техника чтения":                      5,
	"Устный счет":                         4,
	"Экзамен":                             10,
}

// minTestWeight is the lowest weight reported by UpcomingTests.
const minTestWeight = 5
