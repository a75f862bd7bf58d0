package uartbridge

// Frame delimiters used by the gripper controller behind the expansion UART
const (
	FrameStart byte = 0x2B
	FrameEnd   byte = 0x23
)

const (
	gripperOpcodeGrip    byte = 0x01
	gripperOpcodeFingers byte = 0x02

	gripperGripAction byte = 0x0A
	gripperGripClose  byte = 0x01
	gripperGripOpen   byte = 0x02

	maxFingerPosition = 100
)

// GripOpen opens the gripper
var GripOpen = Command{FrameStart, gripperOpcodeGrip, gripperGripAction, gripperGripOpen, 0x00, 0x00, FrameEnd}

// GripClose closes the gripper
var GripClose = Command{FrameStart, gripperOpcodeGrip, gripperGripAction, gripperGripClose, 0x00, 0x00, FrameEnd}

// FingerPositions builds a percentage-mode frame positioning each finger (0-100)
func FingerPositions(index, middle, thumb, ring uint8) (Command, error) {
	for _, v := range []uint8{index, middle, thumb, ring} {
		if v > maxFingerPosition {
			return nil, ErrInvalidFingerPosition
		}
	}
	return Command{FrameStart, gripperOpcodeFingers, index, middle, thumb, ring, FrameEnd}, nil
}
