package feature

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rushteam/creditiq/core"
)

// ReadSchemaCSV 读取 selected_features.csv，按行序返回特征 schema。
//
// 文件格式：首行为表头，必须包含 feature 列；其余列忽略。
//
//	feature
//	D_39_last
//	S_3_mean
func ReadSchemaCSV(r io.Reader) (core.FeatureSchema, error) {
	rows, col, err := readCSV(r, "feature")
	if err != nil {
		return core.FeatureSchema{}, fmt.Errorf("读取特征列表失败: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row[col["feature"]])
	}
	return core.NewFeatureSchema(names)
}

// ReadImportanceCSV 读取 feature_importance_model1.csv，返回按 importance 降序的表。
//
// 文件格式：首行为表头，必须包含 feature 和 importance 两列。
//
//	feature,importance
//	P_2_last,0.0831
//	D_48_mean,0.0412
func ReadImportanceCSV(r io.Reader) (core.ImportanceTable, error) {
	rows, col, err := readCSV(r, "feature", "importance")
	if err != nil {
		return nil, fmt.Errorf("读取特征重要性失败: %w", err)
	}
	entries := make([]core.ImportanceEntry, 0, len(rows))
	for i, row := range rows {
		raw := strings.TrimSpace(row[col["importance"]])
		importance, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("读取特征重要性失败: 第 %d 行 importance=%q 不是数值", i+2, raw)
		}
		entries = append(entries, core.ImportanceEntry{
			Feature:    strings.TrimSpace(row[col["feature"]]),
			Importance: importance,
		})
	}
	return core.NewImportanceTable(entries), nil
}

// readCSV 读取带表头的 CSV，返回数据行与所需列的下标
func readCSV(r io.Reader, required ...string) ([][]string, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("文件为空")
	}
	if err != nil {
		return nil, nil, err
	}

	col := make(map[string]int, len(required))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		for _, want := range required {
			if h == want {
				col[want] = i
			}
		}
	}
	for _, want := range required {
		if _, ok := col[want]; !ok {
			return nil, nil, fmt.Errorf("缺少列 %q", want)
		}
	}

	var rows [][]string
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		for _, want := range required {
			if col[want] >= len(rec) {
				return nil, nil, fmt.Errorf("第 %d 行缺少列 %q", line, want)
			}
		}
		rows = append(rows, rec)
	}
	return rows, col, nil
}
