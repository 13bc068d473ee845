package rover

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandKind identifies an inbound wire line
type CommandKind int

const (
	CommandRobot CommandKind = iota + 1
	CommandTarget
	CommandObstacle
)

// Wire tags
const (
	TagRobot    = "ROBOT"
	TagTarget   = "TARGET"
	TagObstacle = "OBSTACLE"
	nullField   = "NULL"
)

func (k CommandKind) String() string {
	switch k {
	case CommandRobot:
		return "robot"
	case CommandTarget:
		return "target"
	case CommandObstacle:
		return "obstacle"
	}
	return "unknown"
}

// PoseCommand is an authoritative ROBOT,x,y,H pose
type PoseCommand struct {
	X, Y    int
	Heading Direction
}

// TargetCommand is TARGET,obstacleId,targetId; NULL arrives as NullTarget
type TargetCommand struct {
	ObstacleID int
	TargetID   int
}

// ObstacleCommand is OBSTACLE,id,x,y,DIRECTION
type ObstacleCommand struct {
	ID, X, Y  int
	Direction Direction
}

// Command is one decoded inbound line. Exactly one payload matches Kind.
type Command struct {
	Kind     CommandKind
	Pose     PoseCommand
	Target   TargetCommand
	Obstacle ObstacleCommand
}

// ParseLine decodes a single comma-separated line. Fields are trimmed and
// the tag is matched case-insensitively. Unknown tags return
// ErrUnknownCommand; bad field counts or values return ErrMalformedCommand.
func ParseLine(line string) (Command, error) {
	fields := splitFields(line)
	if len(fields) == 0 || fields[0] == "" {
		return Command{}, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}

	args := fields[1:]
	switch strings.ToUpper(fields[0]) {
	case TagRobot:
		return parseRobot(args)
	case TagTarget:
		return parseTarget(args)
	case TagObstacle:
		return parseObstacle(args)
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
}

func parseRobot(args []string) (Command, error) {
	if len(args) != 3 {
		return Command{}, fmt.Errorf("%w: ROBOT wants 3 fields, got %d", ErrMalformedCommand, len(args))
	}
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return Command{}, fmt.Errorf("%w: ROBOT x %q", ErrMalformedCommand, args[0])
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return Command{}, fmt.Errorf("%w: ROBOT y %q", ErrMalformedCommand, args[1])
	}
	h, err := ParseDirectionLetter(args[2])
	if err != nil {
		return Command{}, fmt.Errorf("%w: ROBOT heading: %w", ErrMalformedCommand, err)
	}
	return Command{Kind: CommandRobot, Pose: PoseCommand{X: x, Y: y, Heading: h}}, nil
}

func parseTarget(args []string) (Command, error) {
	if len(args) != 2 {
		return Command{}, fmt.Errorf("%w: TARGET wants 2 fields, got %d", ErrMalformedCommand, len(args))
	}
	obstacleID, err := strconv.Atoi(args[0])
	if err != nil {
		return Command{}, fmt.Errorf("%w: TARGET obstacle id %q", ErrMalformedCommand, args[0])
	}

	targetID := NullTarget
	if !strings.EqualFold(args[1], nullField) {
		targetID, err = strconv.Atoi(args[1])
		if err != nil {
			return Command{}, fmt.Errorf("%w: TARGET target id %q", ErrMalformedCommand, args[1])
		}
	}
	return Command{Kind: CommandTarget, Target: TargetCommand{ObstacleID: obstacleID, TargetID: targetID}}, nil
}

func parseObstacle(args []string) (Command, error) {
	if len(args) != 4 {
		return Command{}, fmt.Errorf("%w: OBSTACLE wants 4 fields, got %d", ErrMalformedCommand, len(args))
	}
	var nums [3]int
	for i, name := range []string{"id", "x", "y"} {
		n, err := strconv.Atoi(args[i])
		if err != nil {
			return Command{}, fmt.Errorf("%w: OBSTACLE %s %q", ErrMalformedCommand, name, args[i])
		}
		nums[i] = n
	}
	dir, err := ParseDirection(args[3])
	if err != nil {
		return Command{}, fmt.Errorf("%w: OBSTACLE direction: %w", ErrMalformedCommand, err)
	}
	return Command{Kind: CommandObstacle, Obstacle: ObstacleCommand{
		ID: nums[0], X: nums[1], Y: nums[2], Direction: dir,
	}}, nil
}

func splitFields(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// hasKnownTag reports whether s begins with a recognized tag followed by a
// field separator
func hasKnownTag(s string) bool {
	s = strings.TrimLeft(s, " \t")
	for _, tag := range []string{TagRobot, TagTarget, TagObstacle} {
		if len(s) > len(tag) && strings.EqualFold(s[:len(tag)], tag) && s[len(tag)] == ',' {
			return true
		}
	}
	return false
}

// FormatObstacle renders an obstacle as OBSTACLE,id,x,y,DIRECTION
func FormatObstacle(o Obstacle) string {
	return fmt.Sprintf("%s,%d,%d,%d,%s", TagObstacle, o.ID, o.X, o.Y, o.Direction)
}

// FormatObstacles renders each obstacle on its own line
func FormatObstacles(obstacles []Obstacle) string {
	lines := make([]string, 0, len(obstacles))
	for _, o := range obstacles {
		lines = append(lines, FormatObstacle(o))
	}
	return strings.Join(lines, "\n")
}

// FormatPose renders a vehicle pose as ROBOT,x,y,H
func FormatPose(v Vehicle) string {
	return fmt.Sprintf("%s,%d,%d,%s", TagRobot, v.X, v.Y, v.Heading.Letter())
}

// FormatTarget renders an assignment as TARGET,obstacleId,targetId
func FormatTarget(obstacleID, targetID int) string {
	if IsNullTarget(targetID) {
		return fmt.Sprintf("%s,%d,%s", TagTarget, obstacleID, nullField)
	}
	return fmt.Sprintf("%s,%d,%d", TagTarget, obstacleID, targetID)
}
