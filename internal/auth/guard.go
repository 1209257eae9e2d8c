package auth

import "github.com/Spok95/inventory-bot/internal/dialog"

// Route проверяет экран чата против состояния авторизации.
// ok=true — экран недопустим, нужно немедленно перейти на target.
// Пока состояние не определено (Unknown, Loading), переходов нет.
func Route(s State, current dialog.State) (target dialog.State, ok bool) {
	switch s {
	case Authenticated:
		if current.Group() != dialog.GroupMain {
			return dialog.StateItems, true
		}
	case Unauthenticated:
		if current.Group() != dialog.GroupOnboarding {
			return dialog.StateLogin, true
		}
	}
	return current, false
}
