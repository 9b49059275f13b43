// Package gambling реализует движок азартных игр: слоты, подбрасывание
// монетки, дуэли и ограбления. models.go описывает структуры данных.
package gambling

import "time"

// Имена игр (идут в журнал транзакций и в статистику)
const (
	GameSlots = "slots"
	GameFlip  = "flip"
	GameDuel  = "duel"
	GameHeist = "heist"
)

// Stats — статистика азартных игр пользователя в канале.
// Обновляется атомарно после каждой разрешённой игры.
type Stats struct {
	Username     string    `db:"username"`
	Channel      string    `db:"channel"`
	SlotsPlayed  int       `db:"slots_played"`
	FlipsPlayed  int       `db:"flips_played"`
	DuelsPlayed  int       `db:"duels_played"`
	HeistsPlayed int       `db:"heists_played"`
	BiggestWin   int64     `db:"biggest_win"`
	BiggestLoss  int64     `db:"biggest_loss"` // хранится отрицательным
	Net          int64     `db:"net"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Статусы вызова на дуэль
const (
	ChallengePending  = "pending"
	ChallengeAccepted = "accepted"
	ChallengeDeclined = "declined"
	ChallengeExpired  = "expired"
)

// Challenge — двухфазный вызов на дуэль. Ставка вызывающего в эскроу
// с момента создания; цель платит только при принятии.
type Challenge struct {
	ID         int64     `db:"id"`
	Challenger string    `db:"challenger"`
	Target     string    `db:"target"`
	Channel    string    `db:"channel"`
	Wager      int64     `db:"wager"`
	Status     string    `db:"status"`
	ExpiresAt  time.Time `db:"expires_at"`
	CreatedAt  time.Time `db:"created_at"`
}

// Статусы ограбления
const (
	HeistCollecting = "collecting"
	HeistSuccess    = "success"
	HeistFailure    = "failure"
	HeistCancelled  = "cancelled-insufficient"
)

// Heist — пуловая ставка N участников. Живёт только в памяти:
// рестарт молча роняет незавершённое ограбление (ставки при этом
// уже зафиксированы журналом, финансовой потери нет — см. DESIGN.md).
type Heist struct {
	Channel      string
	Initiator    string
	Participants map[string]int64 // username → ставка
	Deadline     time.Time
	Status       string
}

// OutcomeKind — классификация результата игры.
type OutcomeKind string

const (
	OutcomeWin       OutcomeKind = "win"
	OutcomeLoss      OutcomeKind = "loss"
	OutcomePush      OutcomeKind = "push"
	OutcomeJackpot   OutcomeKind = "jackpot"
	OutcomeRefund    OutcomeKind = "refund"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome — запись о результате игры для внешнего слоя (сообщения,
// объявления). Финансовая часть к моменту создания уже зафиксирована.
type Outcome struct {
	Game     string
	Kind     OutcomeKind
	Username string
	Wager    int64
	Payout   int64
	Net      int64
	Message  string
	Announce bool // достойно ли публичного объявления в канал
}

// Rejection — отказ валидации: не сбой и не исключение, а «ничего не
// произошло» с объяснением для пользователя. Ни одна проверка гейта
// не меняет состояние.
type Rejection struct {
	Message string
}
