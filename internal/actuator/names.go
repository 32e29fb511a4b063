package actuator

// robotgoButton maps b to the window-system backend's button name. That
// backend treats unknown names as the left button.
func robotgoButton(b Button) string {
	switch b {
	case Right:
		return "right"
	case Middle:
		return "center"
	default:
		return "left"
	}
}
