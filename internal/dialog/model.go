package dialog

type State string

const (
	StateIdle State = "idle"

	// Онбординг: вход и регистрация
	StateLogin         State = "login"          // приветствие: «Войти» / «Регистрация»
	StateLoginEmail    State = "login_email"    // ввод email
	StateLoginPassword State = "login_password" // ввод пароля
	StateRegName       State = "reg_name"
	StateRegEmail      State = "reg_email"
	StateRegPassword   State = "reg_password"

	// Инвентарь
	StateItems      State = "items"       // сетка товаров
	StateItemDetail State = "item_detail" // карточка товара
	StateProfile    State = "profile"
	StateImportFile State = "import_file" // ожидание Excel с количествами

	// Добавление товара
	StateAddName        State = "add_name"
	StateAddDescription State = "add_description"
	StateAddQty         State = "add_qty"
	StateAddCategory    State = "add_category"
	StateAddUnit        State = "add_unit"
	StateAddImage       State = "add_image"
	StateAddConfirm     State = "add_confirm"
)

// Group группа экранов для проверки маршрута.
type Group string

const (
	GroupNone       Group = ""
	GroupOnboarding Group = "onboarding"
	GroupMain       Group = "main"
)

func (s State) Group() Group {
	switch s {
	case StateLogin, StateLoginEmail, StateLoginPassword,
		StateRegName, StateRegEmail, StateRegPassword:
		return GroupOnboarding
	case StateItems, StateItemDetail, StateProfile, StateImportFile,
		StateAddName, StateAddDescription, StateAddQty, StateAddCategory,
		StateAddUnit, StateAddImage, StateAddConfirm:
		return GroupMain
	}
	return GroupNone
}

type Payload map[string]any

type Item struct {
	ChatID  int64
	State   State
	Payload Payload
}
