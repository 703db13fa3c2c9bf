package fabriclog

import "go.uber.org/zap"

// Logger is a *zap.Logger scoped to a single node, pre-populated with its
// node_id field.
type Logger struct {
	z *zap.Logger
}

// New builds a production zap.Logger and scopes it to nodeID.
func New(nodeID string) (*Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z.With(zap.String("node_id", nodeID))}, nil
}

// NewDevelopment is New's console-friendly counterpart, used by the demo
// command.
func NewDevelopment(nodeID string) (*Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z.With(zap.String("node_id", nodeID))}, nil
}

// NewNop returns a Logger that discards everything, for tests that do not
// care about log output.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Sync flushes any buffered log entries. Callers should defer it in main.
func (l *Logger) Sync() error {
	return l.z.Sync()
}
