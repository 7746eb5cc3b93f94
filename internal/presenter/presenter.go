// Package presenter defines the contracts the engine uses to drive the
// rendering layer. The engine only ever tells the presentation side what to
// show; it never reads back from it.
package presenter

import "github.com/huntforge/anchorhunt/pkg/anchor"

// Presenter receives spawn, move and visibility commands for anchors, plus
// popup display requests. Calls are fire-and-forget.
type Presenter interface {
	// SpawnOrMove creates the visual for an anchor or repositions an
	// existing one. Add and move are deliberately the same call
	SpawnOrMove(anchorID, prefabKey string, pos anchor.Vec3, rot anchor.Quat, visible bool)

	// Destroy removes the visual for an anchor
	Destroy(anchorID string)

	// SetVisible shows or hides an already spawned anchor
	SetVisible(anchorID string, visible bool)

	// ShowPopup displays a plain message popup
	ShowPopup(message, title string)

	// HidePopup dismisses any open popup
	HidePopup()
}

// PuzzlePrompt is the interactive password prompt for puzzle clues. One
// fixed contract; implementations must satisfy all three methods.
type PuzzlePrompt interface {
	// Show opens the prompt. onSubmit is invoked with the entered text
	// each time the user submits; the prompt stays open until Hide
	Show(hint, title string, onSubmit func(entered string))

	// Hide closes the prompt
	Hide()

	// SetFeedback displays retry feedback inside the open prompt
	SetFeedback(message string)
}
