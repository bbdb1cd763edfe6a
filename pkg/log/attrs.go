package log

import "log/slog"

func Topic[T ~string](name T) slog.Attr {
	return slog.String("topic", string(name))
}

func TargetID[T ~string](id T) slog.Attr {
	return slog.String("target_id", string(id))
}

func OperationID[T ~string](id T) slog.Attr {
	return slog.String("operation_id", string(id))
}

func SequenceID[T ~string](id T) slog.Attr {
	return slog.String("sequence_id", string(id))
}

func Module(ref string) slog.Attr {
	return slog.String("module", ref)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
